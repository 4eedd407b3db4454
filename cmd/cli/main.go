// Command adminctl is a CLI client for the CMS admin auth API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "cms-admin")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cms-admin")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// tokenExpiry reads exp from the token without verifying it; the server does that.
func tokenExpiry(tok string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(time.Hour)
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `adminctl
Usage:
  adminctl -addr HOST:PORT <cmd> [args]

Commands:
  version
  signup          -email <email> [-p <password>] [-first <name> -last <name> -phone <phone>]   (saves token)
  login           -email <email> [-p <password>]                                            (saves token)
  logout
  profile
  update-profile  [-email <email>] [-first <name>] [-last <name>] [-phone <phone>]
  reset-link      -email <email>
  verify-code     -code <code>
  reset-password  -code <code> [-p <new password>]

Without -p the password is read from the terminal.
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

var errUsage = errors.New("usage")

// main dispatches subcommands against the HTTP API.
func main() {
	addr := flag.String("addr", "localhost:8080", "server addr or base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := run(ctx, *addr, flag.Args(), os.Stdout)
	if errors.Is(err, errUsage) {
		usage()
	}
	if err != nil {
		fail(err)
	}
}

func run(ctx context.Context, addr string, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {

	case "version":
		fmt.Fprintf(out, "adminctl %s (%s)\n", version, buildDate)

	case "signup":
		fs := flag.NewFlagSet("signup", flag.ContinueOnError)
		email := fs.String("email", "", "email")
		p := fs.String("p", "", "password")
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		phone := fs.String("phone", "", "phone number")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *email == "" {
			return errors.New("need -email")
		}
		pw, err := passwordOrPrompt(*p, out)
		if err != nil {
			return err
		}
		tok, err := newClient(addr, "").Signup(ctx, *email, pw, profile{FirstName: *first, LastName: *last, PhoneNumber: *phone})
		if err != nil {
			return err
		}
		if err := saveToken(tok, tokenExpiry(tok)); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")

	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		email := fs.String("email", "", "email")
		p := fs.String("p", "", "password")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *email == "" {
			return errors.New("need -email")
		}
		pw, err := passwordOrPrompt(*p, out)
		if err != nil {
			return err
		}
		tok, err := newClient(addr, "").Login(ctx, *email, pw)
		if err != nil {
			return err
		}
		if err := saveToken(tok, tokenExpiry(tok)); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")

	case "logout":
		if err := os.Remove(tokenPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		fmt.Fprintln(out, "ok")

	case "profile":
		token, err := loadToken()
		if err != nil {
			return err
		}
		p, err := newClient(addr, token).Profile(ctx)
		if err != nil {
			return err
		}
		printJSON(out, p)

	case "update-profile":
		fs := flag.NewFlagSet("update-profile", flag.ContinueOnError)
		email := fs.String("email", "", "email")
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		phone := fs.String("phone", "", "phone number")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		changes := map[string]string{}
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "email":
				changes["email"] = *email
			case "first":
				changes["firstName"] = *first
			case "last":
				changes["lastName"] = *last
			case "phone":
				changes["phoneNumber"] = *phone
			}
		})
		if len(changes) == 0 {
			return errors.New("nothing to update")
		}
		token, err := loadToken()
		if err != nil {
			return err
		}
		p, err := newClient(addr, token).UpdateProfile(ctx, changes)
		if err != nil {
			return err
		}
		printJSON(out, p)

	case "reset-link":
		fs := flag.NewFlagSet("reset-link", flag.ContinueOnError)
		email := fs.String("email", "", "email")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *email == "" {
			return errors.New("need -email")
		}
		msg, err := newClient(addr, "").RequestReset(ctx, *email)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, msg)

	case "verify-code":
		fs := flag.NewFlagSet("verify-code", flag.ContinueOnError)
		code := fs.String("code", "", "reset code")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *code == "" {
			return errors.New("need -code")
		}
		msg, err := newClient(addr, "").VerifyCode(ctx, *code)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, msg)

	case "reset-password":
		fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
		code := fs.String("code", "", "reset code")
		p := fs.String("p", "", "new password")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *code == "" {
			return errors.New("need -code")
		}
		pw, err := passwordOrPrompt(*p, out)
		if err != nil {
			return err
		}
		msg, err := newClient(addr, "").ResetPassword(ctx, *code, pw)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, msg)

	default:
		return errUsage
	}
	return nil
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: status=%d code=%s msg=%s\n", ae.StatusCode, ae.Code, ae.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
