package executor

// CommandError is a protocol-level error surfaced to the client as a RESP
// simple error (-ERR, -WRONGTYPE, ...). Distinct from clustererr.ClusterError,
// which covers node-lifecycle failures, not per-command ones (§7).
type CommandError struct {
	Code    string // e.g. "ERR", "WRONGTYPE"
	Message string
}

func (e *CommandError) Error() string { return e.Code + " " + e.Message }

func errWrongType() *CommandError {
	return &CommandError{Code: "WRONGTYPE", Message: "Operation against a key holding the wrong kind of value"}
}

func errNotInteger() *CommandError {
	return &CommandError{Code: "ERR", Message: "value is not an integer or out of range"}
}

func errSyntax() *CommandError {
	return &CommandError{Code: "ERR", Message: "syntax error"}
}

func errNoSuchKey() *CommandError {
	return &CommandError{Code: "ERR", Message: "no such key"}
}

func errWrongNumArgs(cmd string) *CommandError {
	return &CommandError{Code: "ERR", Message: "wrong number of arguments for '" + cmd + "' command"}
}

func errUnknownCommand(cmd string) *CommandError {
	return &CommandError{Code: "ERR", Message: "unknown command '" + cmd + "'"}
}

func errNotAuthenticated() *CommandError {
	return &CommandError{Code: "NOAUTH", Message: "Authentication required"}
}

func errClusterDown() *CommandError {
	return &CommandError{Code: "CLUSTERDOWN", Message: "The cluster is down"}
}

func errNodeDown() *CommandError {
	return &CommandError{Code: "NODEDOWN", Message: "This node is not healthy"}
}
