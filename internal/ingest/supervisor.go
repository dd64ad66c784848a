package ingest

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

// Supervisor owns one capture pipeline started through the shell. The child
// runs in its own process group so the whole tree can be signalled even when
// the descendant walk fails.
type Supervisor struct {
	cmd    *exec.Cmd
	output *os.File
}

// StartPipeline launches script via `sh -c` with dir as working directory.
// Stdout and stderr of the whole tree are merged into a single stream.
func StartPipeline(dir, script string) (*Supervisor, error) {
	cmd := exec.Command("sh", "-c", script)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("starting pipeline: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("starting pipeline: %w", err)
	}
	pw.Close()

	return &Supervisor{cmd: cmd, output: pr}, nil
}

// Output returns the merged stdout/stderr stream. It reaches EOF when the
// last descendant holding the write end exits.
func (s *Supervisor) Output() io.Reader {
	return s.output
}

// PID returns the shell's process id.
func (s *Supervisor) PID() int {
	return s.cmd.Process.Pid
}

// Wait reaps the child and closes the output stream.
func (s *Supervisor) Wait() error {
	err := s.cmd.Wait()
	s.output.Close()
	return err
}

// Terminate sends SIGTERM to the supervised child and every descendant.
// When the descendant walk is unavailable the whole process group is
// signalled instead.
func (s *Supervisor) Terminate() {
	pid := s.cmd.Process.Pid

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		_ = syscall.Kill(-pid, syscall.SIGTERM)
		return
	}
	for _, child := range descendants(proc) {
		_ = child.SendSignal(syscall.SIGTERM)
	}
	_ = proc.SendSignal(syscall.SIGTERM)
}

// descendants walks the child tree depth-first.
func descendants(p *process.Process) []*process.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}
	var out []*process.Process
	for _, c := range children {
		out = append(out, c)
		out = append(out, descendants(c)...)
	}
	return out
}
