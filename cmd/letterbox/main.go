// Command letterbox sends, lists and opens letters through the letters API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"letterbox/pkg/compose"
	"letterbox/pkg/letterclient"
	"letterbox/pkg/mailbox"
	"letterbox/pkg/viewer"
)

const usage = `usage: letterbox [-server URL] <command> [flags]

commands:
  register  register a pincode
  send      compose and send a letter
  inbox     show ready and in-transit letters for a pincode
  open      open and read a letter
  render    save a letter's drawing overlay as PNG
  postbox   show or update a postbox color
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, time.Now); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "letterbox: %v\n", err)
		os.Exit(1)
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func run(ctx context.Context, args []string, out io.Writer, now func() time.Time) error {
	global := flag.NewFlagSet("letterbox", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	server := global.String("server", envOr("LETTERBOX_SERVER", "http://localhost:8080"), "letters API base URL")
	if err := global.Parse(args); err != nil {
		return usageError{err.Error()}
	}
	rest := global.Args()
	if len(rest) == 0 {
		return usageError{"command required"}
	}
	client := letterclient.New(*server)
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "register":
		return runRegister(ctx, client, cmdArgs, out)
	case "send":
		return runSend(ctx, client, cmdArgs, out, now)
	case "inbox":
		return runInbox(ctx, client, cmdArgs, out)
	case "open":
		return runOpen(ctx, client, cmdArgs, out, now)
	case "render":
		return runRender(ctx, client, cmdArgs, out)
	case "postbox":
		return runPostbox(ctx, client, cmdArgs, out)
	default:
		return usageError{"unknown command " + cmd}
	}
}

func runRegister(ctx context.Context, client *letterclient.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	pincode := fs.String("pincode", "", "six digit pincode")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := client.CreateUser(ctx, *pincode)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s)\n", resp.Message, resp.UserID)
	return nil
}

func runSend(ctx context.Context, client *letterclient.Client, args []string, out io.Writer, now func() time.Time) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	from := fs.String("from", "", "sender pincode")
	to := fs.String("to", "", "receiver pincode")
	address := fs.String("address", "", "receiver address")
	title := fs.String("title", "", "letter title")
	content := fs.String("content", "", "letter body, or @file to read it from a file")
	days := fs.Float64("days", -1, "delivery delay in days")
	preset := fs.String("preset", "", "delivery preset label, e.g. \"1 Week\"")
	stamp := fs.String("stamp", "", "stamp design")
	font := fs.String("font", "", "handwriting font")
	paper := fs.String("paper", "", "paper texture")
	ink := fs.String("ink", "", "ink color")
	color := fs.String("color", "", "brush and print color")
	size := fs.Float64("size", 0, "brush and print size")
	var brushes, lips, prints []string
	fs.Func("brush", "brush stroke as space separated x,y points (repeatable)", appendTo(&brushes))
	fs.Func("lip", "lip print at x,y (repeatable)", appendTo(&lips))
	fs.Func("fingerprint", "fingerprint at x,y (repeatable)", appendTo(&prints))
	if err := fs.Parse(args); err != nil {
		return err
	}

	body, err := readContent(*content)
	if err != nil {
		return err
	}
	draft := compose.NewDraft(compose.WithClock(now))
	draft.Title = *title
	draft.Content = body
	draft.ReceiverPincode = *to
	draft.ReceiverAddress = *address
	setIf(&draft.Style.StampDesign, *stamp)
	setIf(&draft.Style.HandwritingFont, *font)
	setIf(&draft.Style.PaperTexture, *paper)
	setIf(&draft.Style.InkColor, *ink)

	switch {
	case *preset != "":
		err = draft.SetDelayPreset(*preset)
	case *days >= 0:
		err = draft.SetDelay(letterclient.DelayDays(*days))
	}
	if err != nil {
		return err
	}
	if *color != "" {
		if err := draft.SetBrushColor(*color); err != nil {
			return err
		}
	}
	if *size > 0 {
		if err := draft.SetBrushSize(*size); err != nil {
			return err
		}
	}
	if err := drawAll(draft, brushes, lips, prints); err != nil {
		return err
	}
	if err := walkToPost(draft); err != nil {
		return err
	}

	req, err := draft.Build(*from)
	if err != nil {
		return err
	}
	resp, err := client.SendLetter(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", resp.Message, resp.LetterID)
	fmt.Fprintf(out, "arrives %s (in %s)\n", resp.DeliveryTime.Local().Format(time.RFC1123),
		mailbox.Countdown(time.Duration(resp.DeliverySeconds)*time.Second))
	return nil
}

// walkToPost moves a written draft through fold, envelope and stamp.
func walkToPost(d *compose.Draft) error {
	if err := d.Next(); err != nil {
		return err
	}
	for d.Stage() == compose.StageFold {
		if err := d.Fold(); err != nil {
			return err
		}
	}
	for d.Stage() < compose.StagePost {
		if err := d.Next(); err != nil {
			return err
		}
	}
	return nil
}

func drawAll(d *compose.Draft, brushes, lips, prints []string) error {
	if len(brushes) > 0 {
		if err := d.SetTool(compose.ToolBrush); err != nil {
			return err
		}
		for _, raw := range brushes {
			points, err := parsePoints(raw)
			if err != nil {
				return err
			}
			if err := d.BeginStroke(points[0][0], points[0][1]); err != nil {
				return err
			}
			for _, p := range points[1:] {
				if err := d.AddPoint(p[0], p[1]); err != nil {
					return err
				}
			}
			if err := d.EndStroke(); err != nil {
				return err
			}
		}
	}
	stamps := []struct {
		tool compose.Tool
		at   []string
	}{{compose.ToolLip, lips}, {compose.ToolFingerprint, prints}}
	for _, s := range stamps {
		if len(s.at) == 0 {
			continue
		}
		if err := d.SetTool(s.tool); err != nil {
			return err
		}
		for _, raw := range s.at {
			p, err := parsePoint(raw)
			if err != nil {
				return err
			}
			if err := d.BeginStroke(p[0], p[1]); err != nil {
				return err
			}
			if err := d.EndStroke(); err != nil {
				return err
			}
		}
	}
	return nil
}

func runInbox(ctx context.Context, client *letterclient.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inbox", flag.ContinueOnError)
	pincode := fs.String("pincode", "", "receiver pincode")
	if err := fs.Parse(args); err != nil {
		return err
	}
	view, err := client.Mailbox(ctx, *pincode)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d ready, %d unread, %d in transit\n", len(view.Ready), view.UnreadCount, len(view.Pending))
	for _, l := range view.Ready {
		mark := "opened"
		if !l.IsDelivered {
			mark = "new"
		}
		fmt.Fprintf(out, "  [%s] %s  %q\n", mark, l.ID, l.Title)
	}
	for _, p := range view.Pending {
		fmt.Fprintf(out, "  [in transit %s] %s  %q\n", mailbox.Countdown(p.Remaining), p.Letter.ID, p.Letter.Title)
	}
	return nil
}

func runOpen(ctx context.Context, client *letterclient.Client, args []string, out io.Writer, now func() time.Time) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	id := fs.String("id", "", "letter id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	letter, err := client.GetLetter(ctx, *id)
	if err != nil {
		return err
	}
	session := viewer.NewSession(letter, client, viewer.WithClock(now))
	if err := session.OpenEnvelope(ctx); err != nil {
		if errors.Is(err, viewer.ErrNotReady) {
			fmt.Fprintf(out, "still in transit, arrives in %s\n", mailbox.Countdown(letter.Remaining(now())))
			return nil
		}
		return err
	}
	if err := session.Unfold(); err != nil {
		return err
	}
	if err := session.StartReading(); err != nil {
		return err
	}
	opened := session.Letter()
	fmt.Fprintf(out, "%s\n\n%s\n", opened.Title, opened.Content)
	if opened.Sender != nil {
		fmt.Fprintf(out, "\nfrom %s\n", opened.Sender.Pincode)
	}
	return nil
}

func runRender(ctx context.Context, client *letterclient.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	id := fs.String("id", "", "letter id")
	path := fs.String("o", "", "output file (default <id>.png)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	data, err := client.Overlay(ctx, *id)
	if err != nil {
		return err
	}
	if *path == "" {
		*path = *id + ".png"
	}
	if err := os.WriteFile(*path, data, 0o644); err != nil {
		return fmt.Errorf("write overlay: %w", err)
	}
	fmt.Fprintf(out, "wrote %s (%d bytes)\n", *path, len(data))
	return nil
}

func runPostbox(ctx context.Context, client *letterclient.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("postbox", flag.ContinueOnError)
	pincode := fs.String("pincode", "", "owner pincode")
	color := fs.String("color", "", "new postbox color")
	pattern := fs.String("pattern", "", "new postbox pattern")
	glow := fs.Bool("glow", false, "enable glow when updating")
	if err := fs.Parse(args); err != nil {
		return err
	}
	box, err := client.GetPostbox(ctx, *pincode)
	if err != nil {
		return err
	}
	if *color != "" || *pattern != "" {
		setIf(&box.Color, *color)
		setIf(&box.Pattern, *pattern)
		box.Glow = *glow
		box.Pincode = *pincode
		if box, err = client.SavePostbox(ctx, box); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "postbox %s: color %s, pattern %s, glow %t, %d stickers, %d decorations\n",
		box.Pincode, box.Color, box.Pattern, box.Glow, len(box.Stickers), len(box.Decorations))
	return nil
}

func appendTo(list *[]string) func(string) error {
	return func(v string) error {
		*list = append(*list, v)
		return nil
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func readContent(v string) (string, error) {
	if !strings.HasPrefix(v, "@") {
		return v, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(v, "@"))
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return string(data), nil
}

func parsePoints(raw string) ([][2]float64, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty brush stroke")
	}
	points := make([][2]float64, 0, len(fields))
	for _, f := range fields {
		p, err := parsePoint(f)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

func parsePoint(raw string) ([2]float64, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(raw), ",")
	if !ok {
		return [2]float64{}, fmt.Errorf("invalid point %q, want x,y", raw)
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if errX != nil || errY != nil {
		return [2]float64{}, fmt.Errorf("invalid point %q, want x,y", raw)
	}
	return [2]float64{x, y}, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
