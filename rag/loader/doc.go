// Package loader provides file loaders for the knowledge base.
//
// DirectoryLoader matches files in a single directory against a glob pattern
// (non-recursive, sorted by name) and delegates each file to the loader
// registered for its extension. Plain text (.txt) and Markdown (.md) are
// supported out of the box:
//
//	dl := loader.NewDirectoryLoader("*.txt", logger)
//	docs, err := dl.Load(ctx, "kb_docs")
//
// Custom loaders can be registered for any extension:
//
//	dl.Registry().Register(".rst", myLoader)
package loader
