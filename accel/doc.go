// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package accel runs operator graphs on vendor accelerator backends.
//
// # Overview
//
// A [Manager] owns one driver library and the backend, device, context and
// graph built on it. Its lifecycle is:
//
//	New -> Init -> (Compile | load a context binary) -> AllocateTensor -> Execute -> Destroy
//
// Init is idempotent once it succeeded. A failed Init leaves the manager
// partially configured; call Destroy before trying again.
//
// # Basic Usage
//
//	import "github.com/born-ml/accel/accel"
//
//	func main() {
//	    cfg := accel.DefaultConfig(accel.KindHTP)
//	    m := accel.New(cfg, nil)
//	    defer m.Destroy()
//
//	    if err := m.Init(); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    g, err := accel.LoadGraph("model.hcl")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if !m.IsNodeSupportedByBackend(g.Ops) {
//	        log.Fatal("graph is not supported by the backend")
//	    }
//	    blob, err := m.Compile(g.Ops)
//	    ...
//	}
//
// # Context Binaries
//
// Compile returns the driver's serialized context. Wrap it with
// [NewContextBinaryFile] to persist it with a checksummed header, and pass
// the payload back to [New] to skip graph construction on the next run.
//
// # Drivers
//
// Native drivers are shared libraries opened at runtime. Set Driver to
// [DriverReference] in the configuration to use the in-process reference
// driver instead, which runs float32 graphs on the host.
package accel
