package main

import (
	"bufio"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mickamy/redis-lite/resp"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// model polls a server's INFO reply on a ticker and renders it read-only —
// it never issues a mutating command.
type model struct {
	addr string

	role       string
	replid     string
	replOffset string
	dir        string
	dbfilename string
	err        error
}

func newModel(addr string) model {
	return model{addr: addr}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(poll(m.addr), tick())
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type pollResultMsg struct {
	role, replid, replOffset, dir, dbfilename string
	err                                       error
}

// poll dials addr, issues INFO and two CONFIG GET calls over this module's
// own resp codec, and reports the result — the same round trip exercised by
// resp's encode/decode round-trip property, just against a live server.
func poll(addr string) tea.Cmd {
	return func() tea.Msg {
		nc, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err != nil {
			return pollResultMsg{err: fmt.Errorf("dial %s: %w", addr, err)}
		}
		defer nc.Close()
		br := bufio.NewReader(nc)

		info, err := roundTrip(nc, br, "INFO")
		if err != nil {
			return pollResultMsg{err: err}
		}
		dir, err := roundTrip(nc, br, "CONFIG", "GET", "dir")
		if err != nil {
			return pollResultMsg{err: err}
		}
		dbfilename, err := roundTrip(nc, br, "CONFIG", "GET", "dbfilename")
		if err != nil {
			return pollResultMsg{err: err}
		}

		res := pollResultMsg{dir: lastElem(dir), dbfilename: lastElem(dbfilename)}
		for _, line := range strings.Split(info.Str, "\n") {
			switch {
			case strings.HasPrefix(line, "role:"):
				res.role = strings.TrimPrefix(line, "role:")
			case strings.HasPrefix(line, "master_replid:"):
				res.replid = strings.TrimPrefix(line, "master_replid:")
			case strings.HasPrefix(line, "master_repl_offset:"):
				res.replOffset = strings.TrimPrefix(line, "master_repl_offset:")
			}
		}
		return res
	}
}

func roundTrip(nc net.Conn, br *bufio.Reader, argv ...string) (resp.Value, error) {
	if _, err := nc.Write(resp.EncodeArgs(argv)); err != nil {
		return resp.Value{}, fmt.Errorf("send %s: %w", argv[0], err)
	}
	v, err := resp.DecodeReply(br)
	if err != nil {
		return resp.Value{}, fmt.Errorf("read reply to %s: %w", argv[0], err)
	}
	return v, nil
}

func lastElem(v resp.Value) string {
	if v.Kind != resp.KindArray || len(v.Array) == 0 {
		return ""
	}
	last := v.Array[len(v.Array)-1]
	return string(last.Bulk)
}

// padRight right-pads s with spaces to width, measuring display width rather
// than byte length so styled labels still line up.
func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

var reSpaces = regexp.MustCompile(`\s+`)

// truncate collapses whitespace runs and clips s to maxLen, appending an
// ellipsis when it had to cut — used to keep a long --dir path on one row.
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return s[:maxLen]
	}
	return s[:maxLen-1] + "…"
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, poll(m.addr)
	case pollResultMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tick()
		}
		m.err = nil
		m.role, m.replid, m.replOffset = msg.role, msg.replid, msg.replOffset
		m.dir, m.dbfilename = msg.dir, msg.dbfilename
		return m, tick()
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render("redis-top") + valueStyle.Render(" - "+m.addr) + "\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render(m.err.Error()) + "\n")
		return b.String()
	}

	row := func(label, value string) string {
		return labelStyle.Render(padRight(label, 20)) + valueStyle.Render(value) + "\n"
	}
	b.WriteString(row("role:", m.role))
	b.WriteString(row("master_replid:", m.replid))
	b.WriteString(row("master_repl_offset:", m.replOffset))
	b.WriteString(row("dir:", truncate(m.dir, 60)))
	b.WriteString(row("dbfilename:", m.dbfilename))
	b.WriteString("\nq: quit\n")
	return b.String()
}
