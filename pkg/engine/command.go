// Package engine builds invocations for the external backup engine and
// parses its free-text output into structured run outcomes. The engine
// itself stays an opaque executable; everything here is argument and
// output plumbing.
package engine

import (
	"fmt"
	"strconv"

	"github.com/duplistack/core/pkg/models"
)

// PasswordEnvVar is the environment variable the engine reads its storage
// password from. Credentials travel via the environment only; they must
// never appear in the argument vector where process listings expose them.
const PasswordEnvVar = "DUPLICACY_PASSWORD"

// Invocation is a fully constructed engine command: what to run, where,
// and with which extra environment.
type Invocation struct {
	BinaryPath string
	Args       []string
	Dir        string
	Env        map[string]string
}

// String renders the invocation for logs, without environment values.
func (inv Invocation) String() string {
	out := inv.BinaryPath
	for _, a := range inv.Args {
		out += " " + a
	}
	return out
}

// Options carries per-run knobs for invocation building.
type Options struct {
	Threads  int
	Password string
	// ExtraEnv holds storage credentials (access keys etc.) keyed by
	// engine variable name.
	ExtraEnv map[string]string
}

// BackupInvocation builds the engine command for one backup run of a job.
// The working directory is the job's source path; the engine resolves the
// destination from its per-repository state under that directory.
func BackupInvocation(binaryPath string, job *models.Job, opts Options) Invocation {
	args := []string{"backup", "-stats"}
	if job.StorageName != "" && job.StorageName != "default" {
		args = append(args, "-storage", job.StorageName)
	}
	if opts.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(opts.Threads))
	}

	return Invocation{
		BinaryPath: binaryPath,
		Args:       args,
		Dir:        job.SourcePath,
		Env:        buildEnv(opts),
	}
}

// ListInvocation builds the engine command that lists a job's snapshots.
func ListInvocation(binaryPath string, job *models.Job, opts Options) Invocation {
	args := []string{"list"}
	if job.StorageName != "" && job.StorageName != "default" {
		args = append(args, "-storage", job.StorageName)
	}

	return Invocation{
		BinaryPath: binaryPath,
		Args:       args,
		Dir:        job.SourcePath,
		Env:        buildEnv(opts),
	}
}

// InitInvocation builds the engine command that binds a source directory
// to a storage destination under a snapshot identifier.
func InitInvocation(binaryPath string, job *models.Job, encrypt bool, opts Options) Invocation {
	args := []string{"init"}
	if !encrypt {
		args = append(args, "-encrypt=false")
	}
	args = append(args, job.SnapshotID, job.StorageURL)

	return Invocation{
		BinaryPath: binaryPath,
		Args:       args,
		Dir:        job.SourcePath,
		Env:        buildEnv(opts),
	}
}

func buildEnv(opts Options) map[string]string {
	env := make(map[string]string, len(opts.ExtraEnv)+1)
	for k, v := range opts.ExtraEnv {
		env[k] = v
	}
	if opts.Password != "" {
		env[PasswordEnvVar] = opts.Password
	}
	return env
}

// FilterLines renders a job's content selection as engine filter patterns:
// an explicit include list followed by an exclude-everything-else rule.
// An empty selection means back up everything, which needs no filter file.
func FilterLines(selection []string) []string {
	if len(selection) == 0 {
		return nil
	}
	lines := make([]string, 0, len(selection)+1)
	for _, entry := range selection {
		if entry == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("+%s", entry))
	}
	if len(lines) == 0 {
		return nil
	}
	lines = append(lines, "-*")
	return lines
}
