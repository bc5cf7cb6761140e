package process

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRun_CapturesOutput(t *testing.T) {
	res, err := Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(res.Stdout)) != "out" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(string(res.Stderr)) != "err" {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	res, err := Run(context.Background(), Command{
		Binary: "sh",
		Args:   []string{"-c", "exit 3"},
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, Command{
		Binary:      "sleep",
		Args:        []string{"10"},
		GracePeriod: time.Second,
	})
	if err == nil {
		t.Fatal("expected error for canceled process")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("process outlived cancellation by %s", elapsed)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	if _, err := Run(context.Background(), Command{Binary: "definitely-not-a-binary-xyz"}); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestRun_RequiresBinary(t *testing.T) {
	if _, err := Run(context.Background(), Command{}); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestRun_Stdin(t *testing.T) {
	res, err := Run(context.Background(), Command{
		Binary: "cat",
		Stdin:  strings.NewReader("piped"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Stdout) != "piped" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}
