package orchestrator

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/randomizedcoder/go-borg-arena/internal/scores"
)

const (
	// ServerCommand is the first argument passed to the server.
	ServerCommand = "server"

	// MinRounds and MaxRounds bound the round count passed to the server.
	MinRounds = 1
	MaxRounds = 10
)

// TournamentParameters describe one server launch. They are copied when a
// launch begins and not changed afterwards.
type TournamentParameters struct {
	ServerPath     string
	MapPath        string // optional
	Rounds         int
	EnabledPlayers int
}

// BuildArguments returns the server argument list:
// server <enabledPlayers> <rounds> [<mapPath>].
// MapPath is appended as given when set; callers drop maps that do not exist.
func BuildArguments(p TournamentParameters) []string {
	args := []string{
		ServerCommand,
		strconv.Itoa(p.EnabledPlayers),
		strconv.Itoa(p.Rounds),
	}
	if p.MapPath != "" {
		args = append(args, p.MapPath)
	}
	return args
}

// ServerWorkDir returns the directory containing the server executable.
func ServerWorkDir(serverPath string) string {
	if abs, err := filepath.Abs(serverPath); err == nil {
		return filepath.Dir(abs)
	}
	return filepath.Dir(serverPath)
}

// ArtifactPath returns where the server writes its results for a working directory.
func ArtifactPath(serverWorkDir string) string {
	return scores.Path(serverWorkDir)
}

// existingMap returns mapPath if it names an existing file, else "".
func existingMap(mapPath string) string {
	if mapPath == "" {
		return ""
	}
	info, err := os.Stat(mapPath)
	if err != nil || info.IsDir() {
		return ""
	}
	return mapPath
}
