package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/captcha"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/captcha/puzzle"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/secret"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"
)

var (
	appName = "captchactl"
	appSha  = "populated-at-link-time"
	logger  = logrus.NewEntry(logrus.StandardLogger())
)

func main() {
	rootLogger := logrus.New()
	rootLogger.SetOutput(os.Stderr)
	logger = rootLogger.WithFields(logrus.Fields{
		"app": appName,
		"sha": appSha,
	})

	if err := makeApp(os.Stdin, os.Stdout).Run(os.Args); err != nil {
		logger.WithField("err", err).Error("command failed")
		_ = os.Stderr.Sync()
		os.Exit(1)
	}
}

func makeApp(in io.Reader, out io.Writer) *cli.App {
	secretFlags := []cli.Flag{
		cli.StringFlag{
			Name:   "captcha-secret",
			EnvVar: "CAPTCHA_SECRET",
			Usage:  "The 32-byte secret used to seal captcha answers",
		},
		cli.StringFlag{
			Name:   "captcha-secret-encoding",
			Value:  "raw",
			EnvVar: "CAPTCHA_SECRET_ENCODING",
			Usage:  "How the captcha secret is encoded (supported values: raw, base64)",
		},
	}
	puzzleFlag := cli.StringFlag{
		Name:   "puzzle-config",
		EnvVar: "PUZZLE_CONFIG",
		Usage:  "An optional YAML file describing the appearance of captcha puzzles",
	}

	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Usage = "generate captcha keys and issue, verify or solve captcha challenges"
	app.Writer = out
	app.Commands = []cli.Command{
		{
			Name:   "keygen",
			Usage:  "print a new random base64-encoded captcha secret",
			Action: keygen,
		},
		{
			Name:  "issue",
			Usage: "issue a challenge, write its image to disk and print its token",
			Flags: append(append([]cli.Flag{}, secretFlags...),
				puzzleFlag,
				cli.StringFlag{
					Name:  "out-dir",
					Value: os.TempDir(),
					Usage: "The directory to write the challenge image to",
				},
			),
			Action: issue,
		},
		{
			Name:      "verify",
			Usage:     "check an answer against a challenge token",
			ArgsUsage: "TOKEN ANSWER",
			Flags:     secretFlags,
			Action:    verify,
		},
		{
			Name:  "solve",
			Usage: "issue a challenge and solve it interactively",
			Flags: append(append([]cli.Flag{}, secretFlags...), puzzleFlag),
			Action: func(appCtx *cli.Context) error {
				return solve(appCtx, &termPrompter{in: bufio.NewReader(in), out: out, dir: os.TempDir()})
			},
		},
	}
	return app
}

func keygen(appCtx *cli.Context) error {
	key, err := secret.Generate()
	if err != nil {
		return err
	}
	defer key.Zero()

	_, err = fmt.Fprintln(appCtx.App.Writer, base64.StdEncoding.EncodeToString(key.Expose()))
	return err
}

func issue(appCtx *cli.Context) error {
	key, err := loadKey(appCtx)
	if err != nil {
		return err
	}
	defer key.Zero()

	iss, err := makeIssuer(appCtx, key)
	if err != nil {
		return err
	}

	ch, err := iss.Issue()
	if err != nil {
		return err
	}

	path := filepath.Join(appCtx.String("out-dir"), fmt.Sprintf("captcha-%s.png", uuid.New()))
	if err = ioutil.WriteFile(path, ch.Image, 0600); err != nil {
		return xerrors.Errorf("write challenge image: %w", err)
	}

	_, err = fmt.Fprintf(appCtx.App.Writer, "image: %s\ntoken: %s\n", path, ch.Token)
	return err
}

func verify(appCtx *cli.Context) error {
	if appCtx.NArg() != 2 {
		return xerrors.Errorf("expected a token and an answer")
	}

	key, err := loadKey(appCtx)
	if err != nil {
		return err
	}
	defer key.Zero()

	ver, err := captcha.NewVerifier(key)
	if err != nil {
		return err
	}

	if err = ver.Verify(appCtx.Args().Get(0), appCtx.Args().Get(1)); err != nil {
		return xerrors.Errorf("answer rejected: %w", err)
	}
	_, err = fmt.Fprintln(appCtx.App.Writer, "answer accepted")
	return err
}

func solve(appCtx *cli.Context, p captcha.Prompter) error {
	key, err := loadKey(appCtx)
	if err != nil {
		return err
	}
	defer key.Zero()

	iss, err := makeIssuer(appCtx, key)
	if err != nil {
		return err
	}
	ver, err := captcha.NewVerifier(key)
	if err != nil {
		return err
	}

	ok, err := captcha.ChallengeUser(iss, ver, p)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.Errorf("incorrect answer")
	}
	_, err = fmt.Fprintln(appCtx.App.Writer, "correct!")
	return err
}

func makeIssuer(appCtx *cli.Context, key *secret.Key) (*captcha.Issuer, error) {
	cfg := puzzle.DefaultConfig()
	if path := appCtx.String("puzzle-config"); path != "" {
		var err error
		if cfg, err = puzzle.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	gen, err := puzzle.NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return captcha.NewIssuer(gen, key)
}

func loadKey(appCtx *cli.Context) (*secret.Key, error) {
	key, err := secret.Load(appCtx.String("captcha-secret"), appCtx.String("captcha-secret-encoding"))
	if err != nil {
		return nil, xerrors.Errorf("invalid captcha secret (see --captcha-secret): %w", err)
	}
	return key, nil
}

// termPrompter writes each challenge image to a file and reads the answer
// from a line of input.
type termPrompter struct {
	in  *bufio.Reader
	out io.Writer
	dir string
}

func (p *termPrompter) Prompt(img image.Image) string {
	f, err := ioutil.TempFile(p.dir, "captcha-*.png")
	if err != nil {
		logger.WithField("err", err).Error("could not create challenge image file")
		return ""
	}
	defer func() { _ = os.Remove(f.Name()) }()

	err = png.Encode(f, img)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		logger.WithField("err", err).Error("could not write challenge image")
		return ""
	}

	_, _ = fmt.Fprintf(p.out, "open %s and type the characters you see: ", f.Name())
	line, _ := p.in.ReadString('\n')
	return strings.TrimSpace(line)
}
