package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for dagwatch
var RootCmd = &cobra.Command{
	Use:              "dagwatch",
	Short:            "DAG ledger feed monitor",
	TraverseChildren: true,
}
