package main

import (
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/spf13/cobra"
)

// optionFlags are the run options shared by run, setup and trigger
type optionFlags struct {
	fromTag       string
	toTag         string
	dbType        string
	provider      string
	stage         string
	testFilter    string
	testDir       string
	withDowngrade bool
}

func (f *optionFlags) register(cmd *cobra.Command, withPipeline bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.fromTag, "from-tag", "", "Version to deploy first")
	flags.StringVar(&f.toTag, "to-tag", "", "Version to upgrade to")
	flags.StringVar(&f.dbType, "db-type", string(types.DBMongo), "Datastore (mongo, postgres)")
	flags.StringVar(&f.provider, "provider", string(types.ProviderCluster), "Backend (compose, cluster)")
	flags.StringVar(&f.testDir, "test-dir", "tests", "Directory of the verification suite")
	cmd.MarkFlagRequired("from-tag")

	if withPipeline {
		flags.StringVar(&f.stage, "stage", "", "Run a single stage")
		flags.StringVar(&f.testFilter, "test-filter", "", "Only run tests matching this pattern")
		flags.BoolVar(&f.withDowngrade, "with-downgrade", false, "Also downgrade and verify again")
		cmd.MarkFlagRequired("to-tag")
	}
}

// options builds and validates the run options
func (f *optionFlags) options() (types.Options, error) {
	opts := types.Options{
		FromTag:       f.fromTag,
		ToTag:         f.toTag,
		DBType:        types.DBType(f.dbType),
		Provider:      types.ProviderKind(f.provider),
		Stage:         types.Stage(f.stage),
		TestFilter:    f.testFilter,
		TestDir:       f.testDir,
		WithDowngrade: f.withDowngrade,
	}
	if err := opts.Validate(); err != nil {
		return types.Options{}, err
	}
	return opts, nil
}
