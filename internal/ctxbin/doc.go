// Package ctxbin stores driver context binaries in a self-describing
// envelope so they can be cached on disk or in object storage and checked
// before they reach the driver.
//
//	Format Structure:
//	  [4 bytes: Magic "ACTX"]
//	  [4 bytes: Version (uint32 LE)]
//	  [4 bytes: Flags (uint32 LE)]
//	  [8 bytes: Header Size (uint64 LE)]
//	  [32 bytes: SHA-256 of the payload]
//	  [Header: JSON metadata]
//	  [Payload: context binary exactly as produced by the driver]
//
// The payload is opaque here. Its layout belongs to the driver that wrote
// it; this package only transports and verifies it.
//
// Example usage:
//
//	blob, err := mgr.Compile(ops)
//	if err != nil {
//	    return err
//	}
//	f := ctxbin.New(blob, ctxbin.NewHeader("forward", "htp", "SM8550"))
//	if err := ctxbin.Save("forward.actx", f); err != nil {
//	    return err
//	}
package ctxbin
