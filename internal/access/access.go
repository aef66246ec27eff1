package access

type Level string
type Action string

const (
	Owner    Level = "owner"
	Editor   Level = "editor"
	ReadOnly Level = "read_only"
)

const (
	ActionRead   Action = "read"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionInvite Action = "invite"
)

func Can(level Level, action Action) bool {
	switch level {
	case Owner:
		return true
	case Editor:
		return action == ActionRead || action == ActionEdit || action == ActionDelete
	case ReadOnly:
		return action == ActionRead
	default:
		return false
	}
}

// Rank orders levels for the equal-distance tie-break: the higher level
// wins, never an arbitrary pick.
func Rank(level Level) int {
	switch level {
	case Owner:
		return 3
	case Editor:
		return 2
	case ReadOnly:
		return 1
	default:
		return 0
	}
}

func Valid(level Level) bool {
	return Rank(level) > 0
}

func Normalize(level string) Level {
	switch Level(level) {
	case Owner, Editor, ReadOnly:
		return Level(level)
	default:
		return ReadOnly
	}
}
