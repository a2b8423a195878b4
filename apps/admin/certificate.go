package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/cheti/apps/api/echo"
	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/services/spreadsheet"
)

var (
	errInvalidLink = errors.New("not a verification link")
	errBadKey      = errors.New("invalid secret key")

	adminActor = core.Actor{ID: "admin", Name: "admin cli"}
)

func (cli *commandLine) addPartition(code, name string) error {
	p, err := cli.svc.CreatePartition(context.Background(), certificate.NewPartition{Code: code, Name: name})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "partition %s created: %s\n", p.Code, p.ID)
	return nil
}

func (cli *commandLine) listPartitions() error {
	partitions, err := cli.svc.QueryPartitions(context.Background())
	if err != nil {
		return err
	}
	for _, p := range partitions {
		fmt.Fprintf(cli.out, "%-8s %s (%s)\n", p.Code, p.Name, p.ID)
	}
	return nil
}

func (cli *commandLine) reconcile(partitionCode, path string, dryRun bool) error {
	ctx := context.Background()
	partition, err := cli.svc.GetPartitionByCode(ctx, partitionCode)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	items, err := spreadsheet.Parse(filepath.Base(path), f)
	if err != nil {
		return errors.Wrap(err, filepath.Base(path))
	}
	res, err := cli.svc.Reconcile(ctx, partition.ID, items, certificate.ReconcileOptions{DryRun: dryRun, Actor: adminActor})
	if err != nil {
		return err
	}

	prefix := ""
	if res.DryRun {
		prefix = "[dry run] "
	}
	fmt.Fprintf(cli.out, "%spartition %s: %s\n", prefix, partition.Code, res.Message)
	for _, vid := range res.Created {
		fmt.Fprintf(cli.out, "created  %s\n", vid)
	}
	for _, vid := range res.Updated {
		fmt.Fprintf(cli.out, "updated  %s\n", vid)
		if diff := res.Changes[vid]; diff != "" {
			fmt.Fprint(cli.out, diff)
		}
	}
	for _, vid := range res.Skipped {
		fmt.Fprintf(cli.out, "skipped  %s\n", vid)
	}
	for _, it := range res.Failed {
		fmt.Fprintf(cli.out, "failed   row %d (%s): %s\n", it.Row, it.ParticipantID, it.Reason)
	}
	return nil
}

func (cli *commandLine) link(vid string) error {
	ctx := context.Background()
	cert, err := cli.repo.GetCertificateByVerificationID(ctx, strings.TrimSpace(vid))
	if err != nil {
		return err
	}
	link, err := cli.svc.Link(ctx, cert.PartitionID, cert.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, link)
	return nil
}

// splitLink returns the data and signature segments of a verification link.
func splitLink(link string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", "", errInvalidLink
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	n := len(segs)
	if n < 3 || segs[n-3] != "verify" {
		return "", "", errInvalidLink
	}
	return segs[n-2], segs[n-1], nil
}

func (cli *commandLine) verify(data, sig string) error {
	v, err := cli.svc.Verify(context.Background(), data, sig)
	if err != nil {
		return err
	}
	if !v.Valid {
		fmt.Fprintf(cli.out, "invalid: %s\n", v.Reason)
		return nil
	}
	c := v.Certificate
	fmt.Fprintf(cli.out, "valid: %s\n", c.VerificationID)
	fmt.Fprintf(cli.out, "  participant: %s\n", c.ParticipantName)
	fmt.Fprintf(cli.out, "  title:       %s\n", c.Title)
	fmt.Fprintf(cli.out, "  program:     %s\n", c.ProgramName)
	fmt.Fprintf(cli.out, "  partition:   %s\n", c.PartitionName)
	fmt.Fprintf(cli.out, "  issued:      %s\n", c.IssueDate)
	fmt.Fprintf(cli.out, "  checked:     %d time(s)\n", c.VerificationCount)
	return nil
}

// token issues a staff token once the operator proves they hold the secret key.
func (cli *commandLine) token(partitionCode, subject, name string, key []byte) error {
	if subtle.ConstantTimeCompare(key, []byte(cli.conf.SecretKey)) != 1 {
		return errBadKey
	}
	partition, err := cli.svc.GetPartitionByCode(context.Background(), partitionCode)
	if err != nil {
		return err
	}
	token, err := echoapi.GenerateToken(cli.conf, echoapi.NewClaims(cli.conf, subject, name, partition.ID))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
