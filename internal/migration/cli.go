package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 执行 migrate 子命令并把结果写到终端
type CLI struct {
	migrator Migrator
	output   io.Writer
}

func NewCLI(migrator Migrator) *CLI {
	return &CLI{migrator: migrator, output: os.Stdout}
}

func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// Run 按子命令名分发. arg 只对 steps 和 force 有意义.
func (c *CLI) Run(ctx context.Context, command string, arg int) error {
	commands := map[string]func() error{
		"up":      func() error { return c.RunUp(ctx) },
		"down":    func() error { return c.RunDown(ctx) },
		"steps":   func() error { return c.RunSteps(ctx, arg) },
		"force":   func() error { return c.RunForce(ctx, arg) },
		"version": func() error { return c.RunVersion(ctx) },
		"status":  func() error { return c.RunStatus(ctx) },
		"info":    func() error { return c.RunInfo(ctx) },
	}
	run, ok := commands[command]
	if !ok {
		return fmt.Errorf("unknown migrate command: %q", command)
	}
	return run()
}

// apply 打印开始提示, 执行变更, 成功后打印当前版本
func (c *CLI) apply(ctx context.Context, banner, failure, done string, change func(context.Context) error) error {
	fmt.Fprintln(c.output, banner)
	if err := change(ctx); err != nil {
		return fmt.Errorf("%s: %w", failure, err)
	}
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "%s. Current version: %d\n", done, info.CurrentVersion)
	return nil
}

func (c *CLI) RunUp(ctx context.Context) error {
	return c.apply(ctx, "Running migrations...", "migration failed", "Migrations complete", c.migrator.Up)
}

func (c *CLI) RunDown(ctx context.Context) error {
	return c.apply(ctx, "Rolling back last migration...", "rollback failed", "Rollback complete", c.migrator.Down)
}

// RunSteps n>0 前进, n<0 回滚
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	banner := fmt.Sprintf("Applying %d migration(s)...", n)
	if n < 0 {
		banner = fmt.Sprintf("Rolling back %d migration(s)...", -n)
	}
	return c.apply(ctx, banner, "migration steps failed", "Complete", func(ctx context.Context) error {
		return c.migrator.Steps(ctx, n)
	})
}

// RunForce 只改写版本号并清除 dirty 标记, 不执行任何 SQL
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}
	fmt.Fprintf(c.output, "Version forced to %d\n", version)
	return nil
}

func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	switch {
	case version == 0:
		fmt.Fprintln(c.output, "No migrations applied yet.")
	case dirty:
		fmt.Fprintf(c.output, "Current version: %d (dirty)\n", version)
	default:
		fmt.Fprintf(c.output, "Current version: %d\n", version)
	}
	return nil
}

func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	applied := 0
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		if s.Applied {
			applied++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, s.state())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.output, "\nTotal: %d, Applied: %d, Pending: %d\n", len(statuses), applied, len(statuses)-applied)
	return nil
}

func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}

	fmt.Fprintln(c.output, "Migration Information:")
	w := tabwriter.NewWriter(c.output, 0, 0, 1, ' ', 0)
	rows := []struct {
		label string
		value any
	}{
		{"Current Version:", info.CurrentVersion},
		{"Dirty:", info.Dirty},
		{"Total Migrations:", info.TotalMigrations},
		{"Applied Migrations:", info.AppliedMigrations},
		{"Pending Migrations:", info.PendingMigrations},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s\t%v\n", r.label, r.value)
	}
	return w.Flush()
}
