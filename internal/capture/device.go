package capture

// DeviceClass tags a file descriptor with the kind of device it refers to.
type DeviceClass int

// Device classes.
const (
	DeviceNone    DeviceClass = iota
	DeviceKGSL3D              // submission device, variant A
	DeviceKGSL2D              // submission device, variant B
	DeviceDisplay             // framebuffer
)

func (c DeviceClass) String() string {
	switch c {
	case DeviceKGSL3D:
		return "kgsl-3d"
	case DeviceKGSL2D:
		return "kgsl-2d"
	case DeviceDisplay:
		return "display"
	default:
		return "none"
	}
}

// Submits reports whether command streams are submitted through devices
// of this class.
func (c DeviceClass) Submits() bool {
	return c == DeviceKGSL3D || c == DeviceKGSL2D
}

var devicePaths = map[string]DeviceClass{
	"/dev/kgsl-3d0":     DeviceKGSL3D,
	"/dev/kgsl-2d0":     DeviceKGSL2D,
	"/dev/kgsl-2d1":     DeviceKGSL2D,
	"/dev/fb0":          DeviceDisplay,
	"/dev/graphics/fb0": DeviceDisplay,
}

// ClassifyPath returns the device class of an opened path.
func ClassifyPath(path string) DeviceClass {
	return devicePaths[path]
}
