package xmodem

// Role identifies which side of a transfer a session plays.
type Role uint8

const (
	RoleSender Role = iota
	RoleReceiver
)

// String returns the role name.
func (r Role) String() string {
	if r == RoleReceiver {
		return "receiver"
	}

	return "sender"
}

// Progress is a snapshot of a running transfer.
type Progress struct {
	Role    Role
	Mode    Mode
	Blocks  int   // blocks acknowledged (sender) or accepted (receiver)
	Bytes   int64 // source bytes acknowledged (sender) or bytes written to the sink (receiver)
	Retries int   // failed attempts so far, all phases
	Done    bool  // set on the final report after a successful EOT exchange
}

// ProgressFunc receives progress reports. It runs on the transfer's goroutine
// and must not block.
type ProgressFunc func(Progress)
