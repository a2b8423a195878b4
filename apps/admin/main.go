package main

import (
	"os"

	dig_container "github.com/trezcool/cheti/apps/api/di/dig"
	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

func main() {
	c := dig_container.New("admin")

	code := 0
	err := c.Invoke(func(
		conf *core.Config,
		logger core.Logger,
		storage *dig_container.Storage,
		svc *certificate.Service,
		mailSvc core.EmailService,
	) {
		defer func() {
			if err := storage.Close(); err != nil {
				logger.Error("Failed to close", err)
			}
		}()

		// start CLI
		cli := commandLine{
			conf:   conf,
			engine: storage.Engine,
			db:     storage.DB,
			repo:   storage.Repo,
			svc:    svc,
			out:    os.Stdout,
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp {
				logger.Error("command failed", err)
			}
			code = 1
		}
		if w, ok := mailSvc.(dig_container.Waiter); ok {
			w.Wait()
		}
	})
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		code = 1
	}
	os.Exit(code)
}
