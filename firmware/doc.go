// Package firmware loads update images and splits them into write chunks.
//
// # Raw Images
//
// Application and modem delta updates are plain binaries sent as one
// contiguous blob:
//
//	data, err := firmware.LoadBinary("app_update.bin")
//	chunks := firmware.Split(0, data, firmware.DefaultChunkSize)
//
// # Signed Packages
//
// Full modem updates come as a signed package. The file is a CBOR signed
// envelope followed directly by the raw segment data:
//
//	[ envelope: [ ..., ..., bstr(manifest), ... ] ][ segment 0 ][ segment 1 ]...
//	manifest:  [ ..., ..., ..., bstr(segment table), ... ]
//	segment table: [ addr0, len0, addr1, len1, ... ]
//
// Segment data starts right after the envelope, so the decoder records how
// many bytes the envelope consumed. The first segment is the modem
// bootloader, all following segments are firmware:
//
//	pkg, err := firmware.LoadPackage("mfw_nrf91x1_full.cbor")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	boot, fw, err := pkg.Chunks(firmware.DefaultChunkSize)
//
// # Error Handling
//
// Every structural problem in a package matches ErrFormat:
//
//	if errors.Is(err, firmware.ErrFormat) {
//	    // corrupt or wrong file, do not retry
//	}
package firmware
