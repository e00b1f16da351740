package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bio-bamcompare/bamcompare"
	"v.io/x/lib/cmdline"
)

func newCmdCompare() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "bio-bam-compare",
		Short:    "Compare the reads of two BAM files",
		ArgsName: "refbam newbam",
		LookPath: false,
	}
	opts := bamcompare.DefaultOpts
	cmd.Flags.StringVar(&opts.RefIndex, "ref-index", "", "Index of refbam. By default, set to refbam + .bai")
	cmd.Flags.StringVar(&opts.NewIndex, "new-index", "", "Index of newbam. By default, set to newbam + .bai")
	cmd.Flags.StringVar(&opts.OutputPath, "output", "", "Diff TSV path. A .gz suffix compresses the output. If empty, diffs are only counted")
	cmd.Flags.StringVar(&opts.SummaryPath, "summary", "", "If nonempty, write the totals to this TSV path")
	regions := cmd.Flags.String("regions", "", `A comma-separated list of regions to compare.
Each region is 'chr', 'chr:pos' or 'chr:begin-end', where [begin,end] is a
1-based, closed interval. By default, every reference in refbam's header is compared.`)
	cmd.Flags.StringVar(&opts.ExcludeBED, "exclude-bed", "", "BED file of regions to ignore. Reads lying entirely in these regions are skipped")
	cmd.Flags.StringVar(&opts.ExcludePolyG, "exclude-polyg", "", "Reference genome version, 37 or 38, whose poly-G artifact region on chromosome 2 is ignored")
	cmd.Flags.IntVar(&opts.PartitionSize, "partition-size", opts.PartitionSize, "Partition width, in bases")
	cmd.Flags.IntVar(&opts.Padding, "padding", opts.Padding, "Reads starting up to this many bases before a region are compared if they overlap it")
	cmd.Flags.IntVar(&opts.HaltThreshold, "halt-threshold", opts.HaltThreshold, "Maximum number of reads buffered per side and partition; 0 = unlimited")
	cmd.Flags.BoolVar(&opts.IgnoreDuplicateFlag, "ignore-dup-diffs", opts.IgnoreDuplicateFlag, "Do not report differences in the duplicate flag")
	cmd.Flags.BoolVar(&opts.ExcludeConsensusReads, "exclude-consensus", opts.ExcludeConsensusReads, "Skip consensus reads (reads with a CR aux tag)")
	cmd.Flags.IntVar(&opts.MinMapQ, "min-mapq", opts.MinMapQ, "Reads with MAPQ below this level are skipped")
	cmd.Flags.IntVar(&opts.FlagExclude, "flag-exclude", opts.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped")
	cmd.Flags.IntVar(&opts.Parallelism, "parallelism", opts.Parallelism, "Number of partitions compared concurrently; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("bio-bam-compare takes refbam and newbam, but got %v", argv)
		}
		opts.RefBAM, opts.NewBAM = argv[0], argv[1]
		if *regions != "" {
			opts.Regions = strings.Split(*regions, ",")
		}
		summary, err := bamcompare.Compare(vcontext.Background(), opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, summary)
		return nil
	})
	return cmd
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdCompare())
}
