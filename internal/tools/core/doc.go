// Package core provides the file-system capabilities: create_file,
// delete_file, read_file, grep, get_directory_tree and show_diff.
//
// Relative paths resolve against the workspace root. Failures are
// returned as *tools.ToolError so the agent loop can feed them back to the
// model: not-found, not-a-file and invalid-pattern are distinct kinds.
package core
