package ctxlog

import (
	"log/slog"
	"time"
)

// Canonical log field names.
const (
	KeyBuildID    = "build_id"
	KeyModule     = "module"
	KeyDependency = "dependency"
	KeyVersion    = "version"
	KeyDir        = "dir"
	KeyKind       = "kind"
	KeyArtifact   = "artifact"
	KeyToolchain  = "toolchain"
	KeyCommand    = "command"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

func BuildID(id string) slog.Attr { return slog.String(KeyBuildID, id) }
func Module(name string) slog.Attr { return slog.String(KeyModule, name) }
func Dependency(name string) slog.Attr { return slog.String(KeyDependency, name) }
func Version(v string) slog.Attr { return slog.String(KeyVersion, v) }
func Dir(dir string) slog.Attr { return slog.String(KeyDir, dir) }
func Kind(kind string) slog.Attr { return slog.String(KeyKind, kind) }
func Artifact(path string) slog.Attr { return slog.String(KeyArtifact, path) }
func Toolchain(name string) slog.Attr { return slog.String(KeyToolchain, name) }
func Command(line string) slog.Attr { return slog.String(KeyCommand, line) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
