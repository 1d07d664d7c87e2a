package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletclient/internal/config"
	"github.com/congo-pay/walletclient/internal/core"
	"github.com/congo-pay/walletclient/internal/ledger"
	"github.com/congo-pay/walletclient/internal/logging"
	"github.com/congo-pay/walletclient/internal/session"
	"github.com/congo-pay/walletclient/internal/transfer"
)

type app struct {
	core   *core.Core
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

type command struct {
	summary string
	run     func(a *app, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"login":    {"sign in and store the token pair", (*app).login},
	"logout":   {"forget the stored token pair", (*app).logout},
	"whoami":   {"show the signed-in profile", (*app).whoami},
	"balance":  {"show the wallet balance", (*app).balance},
	"ledger":   {"list ledger entries", (*app).ledger},
	"transfer": {"send money to another wallet", (*app).transfer},
}

func run(ctx context.Context, cfg config.Config, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("walletctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	apiURL := global.String("api", cfg.APIURL, "wallet API base URL")
	verbose := global.Bool("v", false, "log gateway calls")
	showMetrics := global.Bool("metrics", false, "print gateway metrics to stderr when done")
	global.Usage = func() { usage(stderr, global) }
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "walletctl: unknown command %q\n", rest[0])
		global.Usage()
		return 2
	}

	cfg.APIURL = strings.TrimRight(*apiURL, "/")
	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	logger := logging.NewConsole(stderr, level)

	reg := prometheus.NewRegistry()
	c, err := core.New(ctx, cfg, logger, core.WithRegisterer(reg))
	if err != nil {
		fmt.Fprintf(stderr, "walletctl: %v\n", err)
		return 1
	}
	defer c.Dispose()

	a := &app{core: c, in: bufio.NewReader(stdin), out: stdout, errOut: stderr}
	err = cmd.run(a, ctx, rest[1:])
	if *showMetrics {
		dumpMetrics(stderr, reg)
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "walletctl: %v\n", err)
		return 1
	}
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: walletctl [flags] <command> [command flags]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func (a *app) prompt(label string) string {
	fmt.Fprint(a.errOut, label)
	line, _ := a.in.ReadString('\n')
	return strings.TrimSpace(line)
}

// requireSession restores the stored session and fails when there is none.
func (a *app) requireSession(ctx context.Context) error {
	if a.core.Init(ctx) != session.StateAuthenticated {
		return errors.New("not signed in, run walletctl login")
	}
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "account email (prompted when empty)")
	password := fs.String("password", os.Getenv("WALLET_PASSWORD"), "account password, defaults to $WALLET_PASSWORD (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.core.Init(ctx)
	if *email == "" {
		*email = a.prompt("Email: ")
	}
	if *password == "" {
		*password = a.prompt("Password: ")
	}
	if err := a.core.Session.Login(ctx, *email, *password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	profile, _ := a.core.Session.Current()
	fmt.Fprintf(a.out, "Signed in as %s <%s>\n", profile.DisplayName(), profile.Email)
	return nil
}

func (a *app) logout(ctx context.Context, args []string) error {
	if err := a.flags("logout").Parse(args); err != nil {
		return err
	}
	a.core.Init(ctx)
	a.core.Logout(ctx)
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) whoami(ctx context.Context, args []string) error {
	if err := a.flags("whoami").Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	p, _ := a.core.Session.Current()

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Name", p.DisplayName()},
		{"Username", p.Username},
		{"Email", p.Email},
		{"Phone", p.PhoneNumber},
		{"Date of birth", p.DateOfBirth},
		{"ID", strings.TrimSpace(p.IDNumberType + " " + p.IDNumber)},
		{"Wallet", p.WalletID},
	}
	for _, row := range rows {
		if row[1] == "" {
			row[1] = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}
	return tw.Flush()
}

func (a *app) balance(ctx context.Context, args []string) error {
	if err := a.flags("balance").Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	balance, err := a.core.Balance.Fetch(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Balance: %s\n", formatAmount(balance))
	return nil
}

func (a *app) ledger(ctx context.Context, args []string) error {
	fs := a.flags("ledger")
	kindFlag := fs.String("kind", "", "only show credit or debit entries")
	search := fs.String("search", "", "match transaction ids")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var kind ledger.Kind
	if *kindFlag != "" {
		k, err := ledger.ParseKind(*kindFlag)
		if err != nil {
			return err
		}
		kind = k
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	entries, err := a.core.Ledger.Fetch(ctx)
	if err != nil {
		return err
	}
	shown := ledger.Filter(entries, kind, *search)
	if len(shown) == 0 {
		fmt.Fprintln(a.out, "No transactions found")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "DATE\tTYPE\tAMOUNT\tTRANSACTION\t")
	for _, e := range shown {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Kind, formatAmount(e.Signed()), e.TransactionID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sum := ledger.Summarize(shown)
	fmt.Fprintf(a.out, "\n%d entries  credits %s  debits %s  net %s\n",
		sum.Count, formatAmount(sum.Credits), formatAmount(sum.Debits), formatAmount(sum.Net()))
	return nil
}

func (a *app) transfer(ctx context.Context, args []string) error {
	fs := a.flags("transfer")
	to := fs.String("to", "", "receiver wallet id, username or email")
	amount := fs.String("amount", "", "amount to send, e.g. 12.50")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	// The guard compares against the last known balance, so load it first.
	if _, err := a.core.Balance.Fetch(ctx); err != nil {
		return err
	}

	out, err := a.core.Transfers.Submit(ctx, *to, *amount)
	for err != nil {
		var subErr *transfer.SubmitError
		if !errors.As(err, &subErr) {
			return err
		}
		fmt.Fprintf(a.errOut, "Transfer failed: %s\n", subErr.Message)
		answer := a.prompt("Retry with the same idempotency key? [y/N]: ")
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			return fmt.Errorf("transfer not confirmed (idempotency key %s)", subErr.Key)
		}
		out, err = a.core.Transfers.Resubmit(ctx, subErr.Request)
	}

	fmt.Fprintf(a.out, "Transfer %s: %s\n", out.TransactionID, out.Status)
	if balance, err := a.core.Balance.Fetch(ctx); err == nil {
		fmt.Fprintf(a.out, "Balance: %s\n", formatAmount(balance))
	}
	return nil
}

// formatAmount renders d with two decimals and thousands separators.
func formatAmount(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func dumpMetrics(w io.Writer, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		fmt.Fprintf(w, "gather metrics: %v\n", err)
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			fmt.Fprintf(w, "encode metrics: %v\n", err)
			return
		}
	}
}
