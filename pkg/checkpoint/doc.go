// Package checkpoint saves how far a profile timeline walk got so an
// interrupted `posts` run can continue from the last end cursor instead of
// the newest post.
//
// Checkpoints live in the platform data directory unless a directory is given:
//   - Linux: $XDG_DATA_HOME/igfetch/checkpoints/ or ~/.local/share/igfetch/checkpoints/
//   - macOS: ~/Library/Application Support/igfetch/checkpoints/
//   - Windows: %APPDATA%/igfetch/checkpoints/
//
// Files are replaced atomically and carry a version number.
package checkpoint
