package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/scigolib/nexus"
	"github.com/scigolib/nexus/internal/config"
	"github.com/scigolib/nexus/internal/writer"
)

// policyValue lets --overwrite be parsed by pflag.
type policyValue struct {
	p *nexus.OverwritePolicy
}

func (v policyValue) String() string {
	if v.p == nil {
		return nexus.Overwrite.String()
	}
	return v.p.String()
}

func (v policyValue) Set(s string) error {
	p, err := writer.ParsePolicy(s)
	if err != nil {
		return err
	}
	*v.p = p
	return nil
}

func (policyValue) Type() string { return "policy" }

var _ pflag.Value = policyValue{}

type buildFlags struct {
	instrument string
	source     string
	output     string
	entry      string
	policy     nexus.OverwritePolicy
	gzip       int
	verify     bool
}

func (f *buildFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.instrument, "instrument", "i", "", "instrument definition XML")
	fs.StringVarP(&f.source, "source", "s", "", "legacy HDF5/NeXus file")
	fs.StringVarP(&f.output, "output", "o", "", "NeXus file to write")
	fs.StringVar(&f.entry, "entry", nexus.DefaultEntryName, "name of the NXentry")
	fs.Var(policyValue{&f.policy}, "overwrite", "overwrite or no-overwrite when the output exists")
	fs.IntVar(&f.gzip, "gzip", 0, "gzip level 1-9 for large datasets, 0 for none")
	fs.BoolVar(&f.verify, "verify", false, "reopen the output and check the carried datasets")
}

// defaultMinCompress is the smallest dataset compressed when --gzip is set.
const defaultMinCompress = 1024

func newBuildCmd(a *app) *cobra.Command {
	f := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build [job.toml|job.yaml]",
		Short: "Write a NeXus file from an instrument definition and a legacy file",
		Long: `Build maps every source, monitor and detector of the instrument definition
to NeXus geometry groups, carries the datasets of the legacy file and writes
the result in one pass. Settings come from a job file, flags, or both; flags
win over the job file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := &config.Job{}
			if len(args) == 1 {
				var err error
				if job, err = config.Load(args[0]); err != nil {
					return err
				}
			}
			req, opts, err := f.resolve(cmd.Flags(), job)
			if err != nil {
				return err
			}
			opts = append(opts, nexus.WithLogger(a.logger))

			report, err := nexus.Convert(cmd.Context(), req, opts...)
			if err != nil {
				return err
			}
			cmd.Printf("wrote %s: %d detectors, %d monitors, %d solid geometry, %d grid pattern, %d grid shape groups, %d datasets carried\n",
				report.Output, report.Detectors, report.Monitors, report.SolidGeometry,
				report.GridPatterns, report.GridShapes, len(report.Carried))

			if f.verify || job.Verify {
				if err := nexus.Verify(report.Output, report.Carried); err != nil {
					return err
				}
				cmd.Printf("verified %d carried datasets\n", len(report.Carried))
			}
			return nil
		},
	}
	f.register(cmd.Flags())
	return cmd
}

// resolve merges the job file with explicitly set flags.
func (f *buildFlags) resolve(fs *pflag.FlagSet, job *config.Job) (nexus.Request, []nexus.Option, error) {
	req := nexus.Request{Instrument: job.Instrument, Source: job.Source, Output: job.Output}
	set := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	set("instrument", &req.Instrument, f.instrument)
	set("source", &req.Source, f.source)
	set("output", &req.Output, f.output)
	if req.Instrument == "" || req.Source == "" || req.Output == "" {
		return req, nil, fmt.Errorf("instrument, source and output are required, from a job file or flags")
	}

	entry := job.EntryName
	if entry == "" || fs.Changed("entry") {
		entry = f.entry
	}
	policy := job.Policy()
	if fs.Changed("overwrite") {
		policy = f.policy
	}
	level, minElements := job.GZIPLevel(), job.Compression.MinElements
	if fs.Changed("gzip") {
		level = f.gzip
	}
	if level > 0 && minElements == 0 {
		minElements = defaultMinCompress
	}

	opts := []nexus.Option{
		nexus.WithEntryName(entry),
		nexus.WithOverwritePolicy(policy),
		nexus.WithGZIP(level, minElements),
	}
	for _, c := range job.Copy {
		opts = append(opts, nexus.WithCopy(nexus.CopyRule{From: c.From, To: c.To, Truncate: c.Truncate}))
	}
	for _, s := range job.Shapes {
		opts = append(opts, nexus.WithShapeFile(s.File, s.Group, s.Name))
	}
	for _, u := range job.Users {
		opts = append(opts, nexus.WithUser(nexus.User{
			Name: u.Name, Email: u.Email, Facility: u.Facility,
			FacilityUserID: u.FacilityUserID, Affiliation: u.Affiliation,
		}))
	}
	if fe := job.FakeEvents; fe != nil {
		opts = append(opts, nexus.WithFakeEvents(nexus.FakeEvents{
			EventsPerPulse: fe.EventsPerPulse, Pulses: fe.Pulses, FrequencyHz: fe.FrequencyHz,
			TOFMin: fe.TOFMin, TOFMax: fe.TOFMax, Seed: fe.Seed,
		}))
	}
	return req, opts, nil
}
