package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const timestampLayout = "2006-01-02T15:04:05.000"

func main() {
	path := flag.String("file", "debug.log", "Log file to append to")
	duration := flag.Duration("d", 30*time.Second, "How long to generate lines")
	rps := flag.Int("rps", 50, "Lines per second")
	plots := flag.Int("plots", 9000, "Initial total plot count")
	rotateEvery := flag.Int("rotate-every", 0, "Rotate the file after this many lines (0 disables)")
	rotateMode := flag.String("rotate-mode", "rename", "Rotation style: rename or truncate")
	flag.Parse()

	if *rotateMode != "rename" && *rotateMode != "truncate" {
		log.Fatalf("unknown rotate mode %q", *rotateMode)
	}

	log.Printf("Writing synthetic harvester log to %s", *path)
	log.Printf("Duration: %s, RPS: %d, rotate every: %d (%s)", *duration, *rps, *rotateEvery, *rotateMode)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	f, err := os.OpenFile(*path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *path, err)
	}
	defer func() { f.Close() }()

	limiter := rate.NewLimiter(rate.Limit(*rps), 10)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	gen := &generator{rng: rng, totalPlots: *plots}

	var written, events, eligible, proofs, rotations int
	for {
		if err := limiter.Wait(ctx); err != nil {
			break // duration elapsed
		}

		line, ev := gen.next(time.Now().UTC())
		if _, err := f.WriteString(line + "\n"); err != nil {
			log.Fatalf("write failed: %v", err)
		}
		written++
		if ev != nil {
			events++
			eligible += ev.eligible
			proofs += ev.proofs
		}

		if *rotateEvery > 0 && written%*rotateEvery == 0 {
			if f, err = rotate(f, *path, *rotateMode, rotations); err != nil {
				log.Fatalf("rotation failed: %v", err)
			}
			rotations++
		}
	}

	log.Println("Generation finished.")
	log.Printf("Lines written: %d", written)
	log.Printf("Harvest events: %d (eligible %d, proofs %d, last total %d)", events, eligible, proofs, gen.totalPlots)
	log.Printf("Rotations: %d", rotations)
}

type harvest struct {
	eligible int
	proofs   int
}

type generator struct {
	rng        *rand.Rand
	totalPlots int
}

// next returns one debug.log line and, for harvest reports, the values it carries.
func (g *generator) next(now time.Time) (string, *harvest) {
	ts := now.Format(timestampLayout)

	switch n := g.rng.Intn(100); {
	case n < 60:
		if g.rng.Intn(20) == 0 {
			g.totalPlots += g.rng.Intn(5) - 1
		}
		h := &harvest{eligible: g.rng.Intn(g.totalPlots/512 + 2)}
		if h.eligible > 0 && g.rng.Intn(50) == 0 {
			h.proofs = 1
		}
		digest := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
		return fmt.Sprintf("%s harvester chia.harvester.harvester: INFO     %d plots were eligible for farming %s... Found %d proofs. Time: %.5f s. Total %d plots",
			ts, h.eligible, digest, h.proofs, g.rng.Float64(), g.totalPlots), h
	case n < 75:
		return fmt.Sprintf("%s farmer farmer_server              : INFO     <- new_signage_point_harvester from peer %s", ts, uuid.NewString()[:8]), nil
	case n < 85:
		return fmt.Sprintf("%s full_node full_node_server        : INFO     <- respond_peers from peer %s", ts, uuid.NewString()[:8]), nil
	case n < 92:
		return fmt.Sprintf("%s harvester chia.harvester.harvester: WARNING  Looking up qualities on /plots/plot-%s.plot took: %.2f", ts, uuid.NewString()[:8], 5+g.rng.Float64()*10), nil
	case n < 96:
		return fmt.Sprintf("%s harvester chia.plotting.plot_tools: ERROR    Failed to open file /plots/plot-%s.plot", ts, uuid.NewString()[:8]), nil
	default:
		return "Traceback (most recent call last):", nil
	}
}

func rotate(f *os.File, path, mode string, seq int) (*os.File, error) {
	switch mode {
	case "truncate":
		if err := f.Truncate(0); err != nil {
			return f, err
		}
		return f, nil
	default:
		if err := f.Close(); err != nil {
			return f, err
		}
		if err := os.Rename(path, fmt.Sprintf("%s.%d", path, seq+1)); err != nil {
			return f, err
		}
		return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}
}
