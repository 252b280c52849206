// ABOUTME: gatekeeper subcommands for account flows, raw API calls and route checks
// ABOUTME: Output goes to stdout; logs and metrics go to stderr

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/2389/gatekeeper/internal/account"
	"github.com/2389/gatekeeper/internal/dispatch"
	"github.com/2389/gatekeeper/internal/guard"
	"github.com/2389/gatekeeper/internal/session"
)

type appFunc func() *app

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func loginCmd(appFn appFunc) *cobra.Command {
	var creds account.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token and role",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if creds.Password == "" {
				pw, err := promptLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return err
				}
				creds.Password = pw
			}

			res, err := a.accounts.Login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s logged in as %s (%s)\n", color.GreenString("✓"), res.Email, res.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&creds.Email, "email", "e", "", "account email (required)")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			err := a.accounts.Logout(cmd.Context())
			if a.store.Session().IsAnonymous() {
				fmt.Fprintf(a.out, "%s session cleared\n", color.GreenString("✓"))
			}
			return err
		},
	}
}

func registerCmd(appFn appFunc) *cobra.Command {
	var reg account.Registration

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if reg.Password == "" {
				pw, err := promptLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return err
				}
				reg.Password = pw
			}
			if err := a.accounts.Register(cmd.Context(), reg); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s registered %s, log in to continue\n", color.GreenString("✓"), reg.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reg.Email, "email", "e", "", "account email (required)")
	cmd.Flags().StringVarP(&reg.Username, "username", "u", "", "display name")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func whoamiCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			sess := a.store.Session()
			if !sess.HasToken() {
				fmt.Fprintln(a.out, color.YellowString("not logged in"))
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "TOKEN\t%s\n", maskToken(sess.Token))
			fmt.Fprintf(w, "ROLE\t%s\n", displayRole(sess.Role))
			fmt.Fprintf(w, "HOME\t%s\n", a.cfg.Guard.HomeRoutes().For(sess.Role))

			// Unverified: display only
			if info, err := session.Inspect(sess.Token); err == nil {
				if info.Subject != "" {
					fmt.Fprintf(w, "SUBJECT\t%s\n", info.Subject)
				}
				if info.ExpiresAt != nil {
					state := "valid"
					if info.Expired(time.Now()) {
						state = color.RedString("expired")
					}
					fmt.Fprintf(w, "EXPIRES\t%s (%s)\n", info.ExpiresAt.Local().Format(time.RFC3339), state)
				}
			}
			return w.Flush()
		},
	}
}

func profileCmd(appFn appFunc) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "profile <email>",
		Short: "Show or update an account profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			email := args[0]
			if username != "" {
				if err := a.accounts.UpdateProfile(cmd.Context(), email, username); err != nil {
					return err
				}
			}

			p, err := a.accounts.Profile(cmd.Context(), email)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "EMAIL\t%s\n", p.Email)
			fmt.Fprintf(w, "USERNAME\t%s\n", p.Username)
			fmt.Fprintf(w, "ROLE\t%s\n", displayRole(p.Role))
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&username, "set-username", "", "change the username before showing the profile")
	return cmd
}

func fetchCmd(appFn appFunc) *cobra.Command {
	var (
		data    string
		form    []string
		headers []string
		include bool
	)

	cmd := &cobra.Command{
		Use:   "fetch [METHOD] <path>",
		Short: "Send an authenticated request to the API",
		Long: `Send a request through the dispatcher. The session token is attached
as a bearer credential and JSON bodies are labeled application/json.

Examples:
  gatekeeper fetch /available-lots
  gatekeeper fetch POST /reserve --data '{"lot_id": 3}'
  gatekeeper fetch POST /upload --form lot=A --form receipt=@receipt.pdf`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			opts, path, err := buildFetchOptions(args, data, form, headers)
			if err != nil {
				return err
			}

			resp, err := a.dispatcher.Dispatch(cmd.Context(), path, opts)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if include {
				printStatus(a.out, resp)
			} else if resp.StatusCode >= 400 {
				printStatus(cmd.ErrOrStderr(), resp)
			}
			if _, err := io.Copy(a.out, resp.Body); err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body, sent as-is with JSON content type unless -H sets one")
	cmd.Flags().StringArrayVarP(&form, "form", "F", nil, "multipart field key=value, or key=@file to attach a file")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header 'Name: value'")
	cmd.Flags().BoolVarP(&include, "include", "i", false, "print the status line and response headers")
	return cmd
}

func buildFetchOptions(args []string, data string, form, headers []string) (dispatch.Options, string, error) {
	opts := dispatch.Options{Method: http.MethodGet}
	path := args[0]
	if len(args) == 2 {
		opts.Method = strings.ToUpper(args[0])
		path = args[1]
	}

	if data != "" && len(form) > 0 {
		return opts, "", errors.New("--data and --form are mutually exclusive")
	}

	if len(headers) > 0 {
		opts.Header = make(http.Header)
		for _, h := range headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok {
				return opts, "", fmt.Errorf("invalid header %q (want 'Name: value')", h)
			}
			opts.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}

	switch {
	case data != "":
		opts.Body = data
	case len(form) > 0:
		f := dispatch.NewForm()
		for _, kv := range form {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return opts, "", fmt.Errorf("invalid form field %q (want key=value)", kv)
			}
			if file, isFile := strings.CutPrefix(value, "@"); isFile {
				content, err := os.ReadFile(file)
				if err != nil {
					return opts, "", fmt.Errorf("reading form file: %w", err)
				}
				f.AddFile(key, file, strings.NewReader(string(content)))
				continue
			}
			f.Set(key, value)
		}
		opts.Body = f
	}

	if opts.Body != nil && opts.Method == http.MethodGet && len(args) == 1 {
		opts.Method = http.MethodPost
	}
	return opts, path, nil
}

func printStatus(w io.Writer, resp *http.Response) {
	status := resp.Status
	switch {
	case resp.StatusCode >= 500:
		status = color.RedString(status)
	case resp.StatusCode >= 400:
		status = color.YellowString(status)
	default:
		status = color.GreenString(status)
	}
	fmt.Fprintf(w, "%s %s\n", resp.Proto, status)

	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", color.HiBlackString(k), strings.Join(resp.Header[k], ", "))
	}
	fmt.Fprintln(w)
}

func navCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "nav <path>...",
		Short: "Navigate through client routes and show each guard decision",
		Long: `Push each path through the navigator in order. Static redirects and
guard redirects are followed; the route finally shown is printed.

Example:
  gatekeeper nav / /admin-dashboard /profile`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			nav := a.navigator()

			var failed int
			for _, p := range args {
				res, err := nav.Push(p)
				if err != nil {
					failed++
					fmt.Fprintf(a.out, "%s %s: %v\n", color.RedString("✗"), p, err)
					continue
				}
				for _, hop := range res.Hops {
					reason := "route redirect"
					if !hop.Static {
						reason = string(hop.Decision.Reason)
					}
					fmt.Fprintf(a.out, "  %s → %s %s\n", hop.From, hop.To, color.HiBlackString("("+reason+")"))
				}
				mark := color.GreenString("✓")
				if res.Redirected() {
					mark = color.YellowString("↪")
				}
				fmt.Fprintf(a.out, "%s %s shows %s\n", mark, p, res.Match.Path)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d navigations failed", failed, len(args))
			}
			return nil
		},
	}
}

func routesCmd(appFn appFunc) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List client routes and their access requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			header := "PATH\tNAME\tAUTH\tROLE\tREDIRECT"
			if check {
				header += "\tDECISION"
			}
			fmt.Fprintln(w, header)

			for _, r := range a.table.Routes() {
				auth := "-"
				if r.RequiresAuth {
					auth = "yes"
				}
				line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s", r.Path, dash(r.Name), auth, dash(string(r.RequiresRole)), dash(r.Redirect))
				if check {
					line += "\t" + decisionFor(a, r.Path)
				}
				fmt.Fprintln(w, line)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "show the guard decision for the current session")
	return cmd
}

func decisionFor(a *app, path string) string {
	to, ok := a.table.Resolve(path)
	if !ok {
		return "-"
	}
	if to.Leaf().Redirect != "" {
		return "→ " + to.Leaf().Redirect
	}
	d := a.guard.Evaluate(to, to)
	if d.Action == guard.Allow {
		return color.GreenString(d.String())
	}
	return color.YellowString(d.String())
}

func dumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding metrics: %w", err)
		}
	}
	if c, ok := enc.(expfmt.Closer); ok {
		return c.Close()
	}
	return nil
}

func promptLine(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "…" + token[len(token)-4:]
}

func displayRole(r session.Role) string {
	if r == "" {
		return color.HiBlackString("(none)")
	}
	return string(r)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

