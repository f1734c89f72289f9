// Package watcher turns file system changes under collection roots into
// debounced batches and feeds them back into ingest.
//
// fsnotify is the primary source; a polling walker takes over where
// inotify-style watching is unavailable (network mounts, some container
// volumes). Rapid sequences for the same path are coalesced so an editor
// save produces one ingest.
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go func() { _ = w.Start(ctx, roots...) }()
//	return watcher.Run(ctx, w.Events(), ws, watcher.RunOptions{})
package watcher
