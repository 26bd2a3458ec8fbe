// Package shell exposes the persistent shell sessions as capabilities:
// run_shell, run_powershell and the working-directory helpers. A missing
// shell binary aborts the agent loop; a command timing out does not.
package shell
