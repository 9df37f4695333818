//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package platform

func uname() Info {
	return Info{}
}
