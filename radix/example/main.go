package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aglyzov/go-cds/alloc"
	"github.com/aglyzov/go-cds/radix"
	"github.com/aglyzov/go-cds/scan"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// two trees sharing one mmap-backed superblock pool
	pool := alloc.NewPool(alloc.WithMmap(), alloc.WithLogger(log))
	defer func() {
		if err := pool.Close(); err != nil {
			log.Error("closing pool", "error", err)
		}
	}()

	words := radix.New(100, radix.WithSource(pool), radix.WithLogger(log))
	for i, w := range []string{"cat", "car", "dog", "do", "cathedral", "carbon"} {
		if _, _, err := words.Insert([]byte(w), uint64(i+1)); err != nil {
			log.Error("insert", "key", w, "error", err)
			os.Exit(1)
		}
	}
	words.DebugDump(os.Stdout)

	if m, ok := words.FindNearest([]byte("care")); ok {
		fmt.Printf("nearest(care) -> %q=%d, common prefix %d\n", m.Key, m.Val, m.Len)
	}

	it := words.IterPrefix([]byte("ca"))
	for it.Next() {
		fmt.Printf("%s = %d\n", it.Key(), it.Value())
	}

	println("------")

	bytes := radix.New(0, radix.WithSource(pool))
	for c := 0; c < 256; c++ {
		if _, _, err := bytes.Insert([]byte{byte(c), 'x'}, uint64(c)<<40); err != nil {
			log.Error("insert", "key", c, "error", err)
			os.Exit(1)
		}
	}
	st := bytes.Stats()
	fmt.Printf("scan=%s keys=%d scan_nodes=%d mask_nodes=%d next_blocks=%d ptr_nodes=%d\n",
		scan.Active().Name, st.Keys, st.ScanNodes, st.MaskNodes, st.NextBlocks, st.PtrNodes)
	fmt.Println(st.Alloc, pool)

	if err := bytes.Verify(); err != nil {
		log.Error("verify", "error", err)
	}
	for name, tr := range map[string]*radix.Tree{"bytes": bytes, "words": words} {
		if err := tr.Delete(); err != nil {
			log.Error("delete", "tree", name, "error", err)
		}
	}
	fmt.Println(pool)
}
