package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	engine string
	db     *sql.DB
	repo   certificate.Repository
	svc    *certificate.Service
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run database migrations (goose commands)")
	fmt.Fprintln(cli.out, "  addpartition -code CODE -name NAME - create a partition")
	fmt.Fprintln(cli.out, "  partitions - list partitions")
	fmt.Fprintln(cli.out, "  reconcile -partition CODE -file FILE [-dry-run] - reconcile a .xlsx or .csv batch")
	fmt.Fprintln(cli.out, "  link -vid VERIFICATION_ID - print the verification link of a certificate")
	fmt.Fprintln(cli.out, "  verify -link LINK | -data DATA -signature SIGNATURE - check a verification link")
	fmt.Fprintln(cli.out, "  token -partition CODE -subject ID [-name NAME] - issue a staff token. The secret key will be prompted next.")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addPartitionCmd := flag.NewFlagSet("addpartition", flag.ContinueOnError)
	addPartitionCode := addPartitionCmd.String("code", "", "The partition code, used in verification IDs (e.g. FT).")
	addPartitionName := addPartitionCmd.String("name", "", "The partition's display name.")

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	reconcilePartition := reconcileCmd.String("partition", "", "The partition code.")
	reconcileFile := reconcileCmd.String("file", "", "The .xlsx or .csv batch file.")
	reconcileDryRun := reconcileCmd.Bool("dry-run", false, "Report what would happen without writing anything.")

	linkCmd := flag.NewFlagSet("link", flag.ContinueOnError)
	linkVID := linkCmd.String("vid", "", "The certificate's verification ID.")

	verifyCmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	verifyLink := verifyCmd.String("link", "", "The verification link.")
	verifyData := verifyCmd.String("data", "", "The data segment of the link (instead of -link).")
	verifySig := verifyCmd.String("signature", "", "The signature segment of the link (instead of -link).")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenPartition := tokenCmd.String("partition", "", "The partition code of the staff member.")
	tokenSubject := tokenCmd.String("subject", "", "The staff member's ID.")
	tokenName := tokenCmd.String("name", "", "The staff member's name.")

	for _, fs := range []*flag.FlagSet{addPartitionCmd, reconcileCmd, linkCmd, verifyCmd, tokenCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addpartition":
		if err := addPartitionCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addPartitionCode == "" || *addPartitionName == "" {
			addPartitionCmd.Usage()
			return errHelp
		}
		return cli.addPartition(*addPartitionCode, *addPartitionName)

	case "partitions":
		return cli.listPartitions()

	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *reconcilePartition == "" || *reconcileFile == "" {
			reconcileCmd.Usage()
			return errHelp
		}
		return cli.reconcile(*reconcilePartition, *reconcileFile, *reconcileDryRun)

	case "link":
		if err := linkCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *linkVID == "" {
			linkCmd.Usage()
			return errHelp
		}
		return cli.link(*linkVID)

	case "verify":
		if err := verifyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *verifyLink != "" {
			data, sig, err := splitLink(*verifyLink)
			if err != nil {
				return err
			}
			return cli.verify(data, sig)
		}
		if *verifyData == "" || *verifySig == "" {
			verifyCmd.Usage()
			return errHelp
		}
		return cli.verify(*verifyData, *verifySig)

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenPartition == "" || *tokenSubject == "" {
			tokenCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter secret key:")
		key, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(key) == 0 {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenPartition, *tokenSubject, *tokenName, key)

	default:
		cli.printUsage()
		return errHelp
	}
}
