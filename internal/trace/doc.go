// Package trace implements the fdtrace capture file format.
//
// A trace file is a flat sequence of sections:
//
//	type:    u32 little-endian
//	size:    u32 little-endian
//	payload: size bytes
//
// There is no file header, no padding and no checksum. The stream ends at
// EOF; a short read of a header is treated as the end of the stream, while a
// header whose payload is cut short is reported as ErrTruncated.
//
// Section kinds are an open set. Readers return unknown kinds to the caller,
// which is expected to skip them so that older tools keep working on newer
// captures.
//
// # Usage
//
//	rd := trace.NewReader(f)
//	for {
//	    sect, err := rd.Next()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    switch sect.Kind {
//	    case trace.KindGPUAddr:
//	        r, err := trace.DecodeAddrRange(sect)
//	        ...
//	    }
//	}
package trace
