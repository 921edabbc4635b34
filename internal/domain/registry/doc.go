// Package registry stores published services as plan files under a directory.
//
// A service name is a slash-separated path relative to the registry directory,
// without extension. The file extension on disk picks the codec, so operators
// can keep hand-edited YAML next to generated JSON or compressed CBOR.
//
// Components:
//   - Manager: service CRUD with an in-memory cache
//   - Watch: evicts cached services when their files change on disk
//   - Warm: loads every plan once at startup and reports the broken ones
//
// Example Usage:
//
//	manager, err := registry.NewManager("./services", codec.FormatYAML, logger)
//	err = manager.Save(ctx, "reports/weekly", svc)
//	svc, err := manager.Load(ctx, "reports/weekly")
//	names, err := manager.List(ctx)
package registry
