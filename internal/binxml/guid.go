package binxml

import "github.com/evtx-go/evtxcore/internal/chunk"

// windowsGUIDText renders a 16-byte Windows-mixed-endian GUID as
// "{xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx}" (spec §4.3.5), reusing the same
// byte-swap chunk uses to resolve template GUIDs.
func windowsGUIDText(b []byte) string {
	return "{" + chunk.WindowsGUID(b).String() + "}"
}
