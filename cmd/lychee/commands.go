package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lycheelock/lycheelock/internal/errs"
	"github.com/lycheelock/lycheelock/internal/keyring"
	"github.com/lycheelock/lycheelock/internal/model"
	"github.com/lycheelock/lycheelock/internal/totp"
)

const masked = "********"

// account holds the flags shared by commands that open a vault.
type account struct {
	user     string
	remember bool
}

func accountFlags(fs *flag.FlagSet) *account {
	acc := &account{}
	fs.StringVar(&acc.user, "u", "", "account username")
	fs.BoolVar(&acc.remember, "remember", false, "keep the password in the OS keyring")
	return acc
}

func parse(fs *flag.FlagSet, args []string, acc *account) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if acc != nil && acc.user == "" {
		return fmt.Errorf("%s: need -u", fs.Name())
	}
	return nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := newFlagSet("register", a.errOut)
	acc := accountFlags(fs)
	if err := parse(fs, args, acc); err != nil {
		return err
	}
	pw, err := a.secret("Password: ")
	if err != nil {
		return err
	}
	again, err := a.secret("Repeat password: ")
	if err != nil {
		return err
	}
	if pw != again {
		return errors.New("passwords do not match")
	}
	var u model.User
	err = a.remote(ctx, func(ctx context.Context) (err error) {
		u, err = a.auth.Register(ctx, acc.user, pw)
		return err
	})
	if err != nil {
		return err
	}
	if acc.remember {
		_ = keyring.SavePassword(acc.user, pw)
	}
	fmt.Fprintln(a.out, u.ID)
	return nil
}

func (a *app) cmdEnroll(ctx context.Context, args []string) error {
	fs := newFlagSet("enroll", a.errOut)
	acc := accountFlags(fs)
	qrPath := fs.String("qr", "", "write the QR code PNG to this file")
	if err := parse(fs, args, acc); err != nil {
		return err
	}
	pw, err := a.password(acc.user)
	if err != nil {
		return err
	}
	var (
		u   model.User
		enr totp.Enrollment
	)
	err = a.remote(ctx, func(ctx context.Context) error {
		_, user, err := a.auth.Login(ctx, acc.user, pw, a.cfg.Source)
		if err != nil {
			return err
		}
		u = user
		enr, err = a.auth.BeginTotpEnrollment(ctx, u.ID)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "secret: %s\nuri:    %s\n", enr.Secret, enr.URI)
	if *qrPath != "" {
		png, err := totp.QRPNG(enr.URI)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*qrPath, png, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "qr:     %s\n", *qrPath)
	}

	code, err := a.secret("Authenticator code: ")
	if err != nil {
		return err
	}
	err = a.remote(ctx, func(ctx context.Context) error {
		return a.auth.ConfirmTotpEnrollment(ctx, u.ID, code)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ok")
	return nil
}

func (a *app) cmdForget(args []string) error {
	fs := newFlagSet("forget", a.errOut)
	acc := accountFlags(fs)
	if err := parse(fs, args, acc); err != nil {
		return err
	}
	return keyring.DeletePassword(acc.user)
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	fs := newFlagSet("list", a.errOut)
	acc := accountFlags(fs)
	category := fs.String("category", "", "only this category")
	query := fs.String("q", "", "case-insensitive match on name, username or url")
	if err := parse(fs, args, acc); err != nil {
		return err
	}
	v, err := a.openVault(ctx, acc.user, acc.remember)
	if err != nil {
		return err
	}
	defer v.close()

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUSERNAME\tURL\tCATEGORY")
	for _, e := range v.store.Entries() {
		if !matches(e, *category, *query) {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Username, e.URL, e.Category)
	}
	return tw.Flush()
}

func matches(e model.PasswordEntry, category, query string) bool {
	if category != "" && !strings.EqualFold(e.Category, category) {
		return false
	}
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	for _, f := range []string{e.Name, e.Username, e.URL} {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func (a *app) cmdShow(ctx context.Context, args []string) error {
	fs := newFlagSet("show", a.errOut)
	acc := accountFlags(fs)
	id := fs.String("id", "", "entry id")
	reveal := fs.Bool("reveal", false, "print the password")
	asJSON := fs.Bool("json", false, "print as JSON")
	if err := parse(fs, args, acc); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("show: need -id")
	}
	v, err := a.openVault(ctx, acc.user, acc.remember)
	if err != nil {
		return err
	}
	defer v.close()

	e, ok := v.store.Get(*id)
	if !ok {
		return fmt.Errorf("entry %s: %w", *id, errs.ErrNotFound)
	}
	if !*reveal {
		e.Password = masked
	}
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(e)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", e.ID)
	fmt.Fprintf(tw, "name:\t%s\n", e.Name)
	fmt.Fprintf(tw, "username:\t%s\n", e.Username)
	fmt.Fprintf(tw, "password:\t%s\n", e.Password)
	fmt.Fprintf(tw, "url:\t%s\n", e.URL)
	fmt.Fprintf(tw, "category:\t%s\n", e.Category)
	fmt.Fprintf(tw, "notes:\t%s\n", e.Notes)
	fmt.Fprintf(tw, "created:\t%s\n", e.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(tw, "updated:\t%s\n", e.UpdatedAt.UTC().Format(time.RFC3339))
	return tw.Flush()
}

// entryFlags are the editable entry fields.
type entryFlags struct {
	name, username, password, url, notes, category string
}

func addEntryFlags(fs *flag.FlagSet) *entryFlags {
	f := &entryFlags{}
	fs.StringVar(&f.name, "name", "", "entry name")
	fs.StringVar(&f.username, "username", "", "login")
	fs.StringVar(&f.password, "password", "", "password (prompted when omitted on add)")
	fs.StringVar(&f.url, "url", "", "site url")
	fs.StringVar(&f.notes, "notes", "", "free text")
	fs.StringVar(&f.category, "category", "", "category")
	return f
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := newFlagSet("add", a.errOut)
	acc := accountFlags(fs)
	f := addEntryFlags(fs)
	if err := parse(fs, args, acc); err != nil {
		return err
	}
	if f.name == "" {
		return errors.New("add: need -name")
	}
	v, err := a.openVault(ctx, acc.user, acc.remember)
	if err != nil {
		return err
	}
	defer v.close()

	if f.password == "" {
		if f.password, err = a.secret("Entry password: "); err != nil {
			return err
		}
	}
	e, err := v.store.Add(model.EntryDraft{
		Name:     f.name,
		Username: f.username,
		Password: f.password,
		URL:      f.url,
		Notes:    f.notes,
		Category: f.category,
	})
	if err != nil {
		return err
	}
	if err := a.remote(ctx, v.sync.Save); err != nil {
		return err
	}
	fmt.Fprintln(a.out, e.ID)
	return nil
}

func (a *app) cmdEdit(ctx context.Context, args []string) error {
	fs := newFlagSet("edit", a.errOut)
	acc := accountFlags(fs)
	id := fs.String("id", "", "entry id")
	f := addEntryFlags(fs)
	if err := parse(fs, args, acc); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("edit: need -id")
	}

	// only flags given on the command line change the entry
	var patch model.EntryPatch
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "name":
			patch.Name = &f.name
		case "username":
			patch.Username = &f.username
		case "password":
			patch.Password = &f.password
		case "url":
			patch.URL = &f.url
		case "notes":
			patch.Notes = &f.notes
		case "category":
			patch.Category = &f.category
		}
	})
	if patch.Empty() {
		return errors.New("edit: nothing to change")
	}

	v, err := a.openVault(ctx, acc.user, acc.remember)
	if err != nil {
		return err
	}
	defer v.close()

	if _, err := v.store.Update(*id, patch); err != nil {
		return fmt.Errorf("entry %s: %w", *id, err)
	}
	if err := a.remote(ctx, v.sync.Save); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ok")
	return nil
}

func (a *app) cmdRemove(ctx context.Context, args []string) error {
	fs := newFlagSet("rm", a.errOut)
	acc := accountFlags(fs)
	id := fs.String("id", "", "entry id")
	if err := parse(fs, args, acc); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("rm: need -id")
	}
	v, err := a.openVault(ctx, acc.user, acc.remember)
	if err != nil {
		return err
	}
	defer v.close()

	if !v.store.Delete(*id) {
		return fmt.Errorf("entry %s: %w", *id, errs.ErrNotFound)
	}
	if err := a.remote(ctx, v.sync.Save); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ok")
	return nil
}
