package usi

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/j6k1/nnshogi/internal/mate"
	"github.com/j6k1/nnshogi/internal/search"
	"github.com/j6k1/nnshogi/internal/shogi"
)

// USI implements the USI protocol over line-oriented stdio.
type USI struct {
	adapter *Adapter
	out     io.Writer

	searching  bool
	searchDone chan struct{}
	stop       atomic.Bool
	quited     atomic.Bool
}

// New creates a protocol handler bound to the adapter.
func New(adapter *Adapter) *USI {
	return &USI{adapter: adapter, out: os.Stdout}
}

// Run processes commands until "quit" or EOF. Malformed commands are logged
// and ignored; the engine stays alive across searches.
func (u *USI) Run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "usi":
			u.handleUSI()
		case "isready":
			u.println("readyok")
		case "usinewgame":
			u.adapter.NewGame()
		case "setoption":
			u.handleSetOption(args)
		case "position":
			if err := u.handlePosition(args); err != nil {
				fmt.Fprintf(os.Stderr, "info string %v\n", err)
			}
		case "go":
			u.handleGo(args)
		case "stop":
			u.handleStop()
		case "ponderhit":
			// Reserved; pondering is not implemented.
		case "gameover":
			u.handleGameOver(args)
		case "quit":
			u.handleQuit()
			return
		case "d":
			pos := u.adapter.Position()
			fmt.Fprint(os.Stderr, pos.String())
		default:
			log.Printf("[USI] unknown command %q ignored", cmd)
		}
	}
}

func (u *USI) println(s string) {
	fmt.Fprintln(u.out, s)
}

func (u *USI) handleUSI() {
	u.println("id name nnshogi")
	u.println("id author nnshogi project")
	u.println("option name USI_Hash type spin default 256 min 1 max 4096")
	u.println("option name USI_Ponder type check default false")
	u.println(fmt.Sprintf("option name BaseDepth type spin default %d min 1 max 100", search.DefaultBaseDepth))
	u.println(fmt.Sprintf("option name MaxDepth type spin default %d min 1 max 100", search.DefaultMaxDepth))
	u.println(fmt.Sprintf("option name Threads type spin default %d min 1 max 100", search.DefaultThreads))
	u.println(fmt.Sprintf("option name NetworkDelay type spin default %d min 0 max 10000", search.DefaultNetworkDelay.Milliseconds()))
	u.println("option name DispEvaluteScore type check default false")
	u.println("usiok")
}

func (u *USI) handleSetOption(args []string) {
	var name, value string
	mode := ""
	for _, arg := range args {
		switch arg {
		case "name":
			mode = "name"
		case "value":
			mode = "value"
		default:
			if mode == "name" {
				if name != "" {
					name += " "
				}
				name += arg
			} else if mode == "value" {
				if value != "" {
					value += " "
				}
				value += arg
			}
		}
	}

	cfg := u.adapter.Config()
	switch name {
	case "USI_Hash", "USI_Ponder":
		// Accepted, unused by the core.
	case "BaseDepth":
		if n, err := strconv.Atoi(value); err == nil && n >= 1 {
			cfg.BaseDepth = uint32(n)
		}
	case "MaxDepth":
		if n, err := strconv.Atoi(value); err == nil && n >= 1 {
			cfg.MaxDepth = uint32(n)
		}
	case "Threads":
		if n, err := strconv.Atoi(value); err == nil && n >= 1 {
			cfg.Threads = n
		}
	case "NetworkDelay":
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			cfg.NetworkDelay = time.Duration(n) * time.Millisecond
		}
	case "DispEvaluteScore":
		cfg.DisplayEvalScore = strings.EqualFold(value, "true")
	default:
		log.Printf("[USI] unknown option %q ignored", name)
	}
}

func (u *USI) handlePosition(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("empty position command")
	}

	base := shogi.StartSFEN
	moveStart := len(args)

	switch args[0] {
	case "startpos":
		for i, a := range args {
			if a == "moves" {
				moveStart = i + 1
				break
			}
		}
	case "sfen":
		end := len(args)
		for i, a := range args {
			if a == "moves" {
				end = i
				moveStart = i + 1
				break
			}
		}
		base = strings.Join(args[1:end], " ")
	default:
		return fmt.Errorf("invalid position command %q", args[0])
	}

	var moves []string
	if moveStart < len(args) {
		moves = args[moveStart:]
	}
	return u.adapter.SetPosition(base, moves)
}

// goOptions holds parsed "go" arguments.
type goOptions struct {
	btime, wtime time.Duration
	binc, winc   time.Duration
	byoyomi      time.Duration
	infinite     bool
	mate         bool
	mateInfinite bool
}

func parseGoOptions(args []string) goOptions {
	var opts goOptions
	ms := func(s string) time.Duration {
		n, _ := strconv.Atoi(s)
		return time.Duration(n) * time.Millisecond
	}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "btime":
			if i+1 < len(args) {
				opts.btime = ms(args[i+1])
				i++
			}
		case "wtime":
			if i+1 < len(args) {
				opts.wtime = ms(args[i+1])
				i++
			}
		case "binc":
			if i+1 < len(args) {
				opts.binc = ms(args[i+1])
				i++
			}
		case "winc":
			if i+1 < len(args) {
				opts.winc = ms(args[i+1])
				i++
			}
		case "byoyomi":
			if i+1 < len(args) {
				opts.byoyomi = ms(args[i+1])
				i++
			}
		case "infinite":
			opts.infinite = true
		case "mate":
			opts.mate = true
			if i+1 < len(args) {
				if args[i+1] == "infinite" {
					opts.mateInfinite = true
				} else {
					opts.byoyomi = ms(args[i+1])
				}
				i++
			}
		}
	}
	return opts
}

// deadlineFor converts the time control into an absolute deadline; the zero
// time means unbounded.
func (u *USI) deadlineFor(opts goOptions) time.Time {
	if opts.infinite {
		return time.Time{}
	}
	pos := u.adapter.Position()
	var remaining, inc time.Duration
	if pos.Side == shogi.Black {
		remaining, inc = opts.btime, opts.binc
	} else {
		remaining, inc = opts.wtime, opts.winc
	}

	budget := opts.byoyomi + inc + remaining/40
	if budget <= 0 {
		if remaining > 0 {
			budget = remaining / 40
		} else {
			return time.Time{}
		}
	}
	return time.Now().Add(budget)
}

func (u *USI) handleGo(args []string) {
	opts := parseGoOptions(args)

	if opts.mate {
		u.handleGoMate(opts)
		return
	}

	deadline := u.deadlineFor(opts)

	u.searching = true
	u.stop.Store(false)
	u.searchDone = make(chan struct{})

	go func() {
		defer close(u.searchDone)
		result := u.adapter.Think(deadline, &u.stop, &u.quited, u.sendInfo)
		u.searching = false

		switch result.Kind {
		case search.PlayMove:
			u.sendScore(result.Score)
			u.println("bestmove " + result.Move.String())
		case search.Resign:
			u.println("bestmove resign")
		case search.Abort:
			// Quit mid-search: no bestmove.
		}
	}()
}

func (u *USI) handleGoMate(opts goOptions) {
	var deadline time.Time
	if opts.byoyomi > 0 && !opts.mateInfinite {
		deadline = time.Now().Add(opts.byoyomi)
	}

	u.searching = true
	u.stop.Store(false)
	u.searchDone = make(chan struct{})

	go func() {
		defer close(u.searchDone)
		out := u.adapter.ThinkMate(deadline, &u.stop)
		u.searching = false

		switch out.Kind {
		case mate.Mate:
			line := make([]string, 0, len(out.Moves))
			for _, m := range out.Moves {
				line = append(line, m.String())
			}
			u.println("checkmate " + strings.Join(line, " "))
		case mate.NoMate:
			u.println("checkmate nomate")
		case mate.Timeout, mate.MaxDepth, mate.MaxNodes:
			u.println("checkmate timeout")
		default:
			u.println("checkmate notimplemented")
		}
	}()
}

func (u *USI) handleStop() {
	if u.searchDone == nil {
		return
	}
	u.stop.Store(true)
	<-u.searchDone
	u.searchDone = nil
	u.searching = false
}

func (u *USI) handleGameOver(args []string) {
	u.handleStop()
	result := ResultDraw
	if len(args) > 0 {
		switch args[0] {
		case "win":
			result = ResultWin
		case "lose":
			result = ResultLose
		}
	}
	if err := u.adapter.GameOver(result); err != nil {
		log.Printf("[USI] gameover handling failed: %v", err)
	}
}

func (u *USI) handleQuit() {
	u.quited.Store(true)
	u.handleStop()
}

// sendInfo forwards best-effort search progress as info lines.
func (u *USI) sendInfo(info search.Info) {
	switch {
	case info.Message != "" && info.HasScore:
		fmt.Fprintf(u.out, "info string %s = %d\n", info.Message, info.Score)
	case info.Message != "":
		fmt.Fprintf(u.out, "info string %s\n", info.Message)
	case info.SelDepth > 0:
		fmt.Fprintf(u.out, "info depth %d seldepth %d\n", info.Depth, info.SelDepth)
	}
}

// sendScore reports the root score. Mate scores saturate the centipawn
// scale; evaluator scores are rescaled from their 2^29 range.
func (u *USI) sendScore(score int64) {
	var cp int64
	switch {
	case score >= search.ScoreInfinite:
		cp = 32000
	case score <= -search.ScoreInfinite:
		cp = -32000
	default:
		cp = score >> 15
		if cp > 30000 {
			cp = 30000
		} else if cp < -30000 {
			cp = -30000
		}
	}
	fmt.Fprintf(u.out, "info score cp %d\n", cp)
}
