// Package wasi builds the capability set handed to a sandboxed instance.
//
// Instances receive nothing unless it is granted. A Config lists the grants:
//
//	cfg := wasi.NewConfig().
//		WithPreopen("/data", "/srv/app/data").
//		WithReadOnlyPreopen("/assets", "/srv/app/assets").
//		WithEnv("MODE", "batch").
//		WithArgs("tool", "--fast")
//
// Build turns a Config into a Context holding live handles:
//
//	wctx, err := wasi.Build(cfg)
//	if err != nil { ... }
//	defer wctx.Close()
//	moduleConfig = wctx.Apply(moduleConfig)
//
// # Filesystem confinement
//
// Each preopen is opened as an *os.Root and exposed to the guest as a
// RootFS. All path resolution happens inside the root, so ".." sequences
// and symlinks pointing outside the directory fail instead of escaping.
// Preopen file descriptors start at 3 and follow sorted guest path order.
//
// # Stdio
//
// Standard streams are not connected unless InheritStdin, InheritStdout or
// InheritStderr is set, or a stream is supplied with WithStdin, WithStdout
// or WithStderr.
//
// Configs load from YAML or JSON with LoadConfig:
//
//	preopens:
//	  /data: /srv/app/data
//	env:
//	  MODE: batch
//	inheritStdout: true
package wasi
