package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/zeebo/aamf"
	"github.com/zeebo/errs"
	"github.com/zeebo/mon"
	"github.com/zeebo/mon/monhandler"
	"github.com/zeebo/pcg"
)

var (
	variant  = flag.String("variant", "ext", "filter variant: ext or sel")
	compress = flag.Bool("compress", false, "use the compressed selector encoding (sel variant only)")
	elements = flag.Int("elements", 1000000, "number of elements to insert")
	remBits  = flag.Uint("rem", 8, "remainder bits")
	queries  = flag.Int("queries", 1000000, "number of non-member queries to audit for false positives")
	seed     = flag.Int("seed", 1, "hash seed")
)

func stats() {
	defer fmt.Println()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	mon.Times(func(name string, state *mon.State) bool {
		sum, avg := state.Average()
		fmt.Fprintf(tw, "%s\t%v\t%v\t%v\n",
			name, state.Total(), time.Duration(sum), time.Duration(avg))
		return true
	})
}

func main() {
	flag.Parse()

	defer stats()
	go http.ListenAndServe(":8080", monhandler.Handler{})

	if err := run(); err != nil {
		log.Fatalf("%+v", err)
	}
}

// containsFunc is satisfied by both (*aamf.ExtFilter).Contains and
// (*aamf.SelFilter).Contains, letting run audit either variant with the
// same loop.
type containsFunc func(uint64) (bool, error)

func run() error {
	var insert func(uint64) error
	var contains containsFunc

	switch *variant {
	case "ext":
		f := aamf.NewExtFilter(uint64(*elements), *remBits, uint32(*seed), nil)
		insert, contains = f.Insert, f.Contains
	case "sel":
		var f *aamf.SelFilter
		if *compress {
			f = aamf.NewCompressedSelFilter(uint64(*elements), *remBits, uint32(*seed), nil)
		} else {
			f = aamf.NewSelFilter(uint64(*elements), *remBits, uint32(*seed), nil)
		}
		insert, contains = f.Insert, f.Contains
	default:
		return errs.New("unknown variant %q: want ext or sel", *variant)
	}

	members := make([]uint64, 0, *elements)
	for i := 0; i < *elements; i++ {
		if i > 0 && i%(*elements/10) == 0 {
			fmt.Printf("progress: %0.2f\n", 100*float64(i)/float64(*elements))
			stats()
		}

		v := pcg.Uint64()
		members = append(members, v)
		if err := insert(v); err != nil {
			return errs.Wrap(err)
		}
	}

	fmt.Printf("auditing %d members for false negatives\n", len(members))
	for _, v := range members {
		ok, err := contains(v)
		if err != nil {
			return errs.Wrap(err)
		}
		if !ok {
			return errs.New("false negative: 0x%016x", v)
		}
	}

	count := 0
	for i := 0; i < *queries; i++ {
		ok, err := contains(pcg.Uint64())
		if err != nil {
			return errs.Wrap(err)
		}
		if ok {
			count++
		}
	}
	fmt.Printf("got %d/%d == %0.4f%% false positives\n",
		count, *queries, 100*float64(count)/float64(*queries))

	fmt.Println("done. waiting for ctrl+c...")
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	<-ch
	fmt.Println()

	return nil
}
