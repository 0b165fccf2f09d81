package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dwlehman/peripety/peripety"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <blk>",
	Short: "Query block device information",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := peripety.NewBlkInfo(args[0])
		if err != nil {
			return err
		}

		if infoJSON {
			s, err := info.ToJSONStringPretty()
			if err != nil {
				return err
			}
			fmt.Println(s)
			return nil
		}

		fmt.Printf("blk_path     : %s\n", info.BlkPath)
		fmt.Printf("blk_type     : %s\n", info.BlkType)
		fmt.Printf("wwid         : %s\n", info.WWID)
		fmt.Printf("owners_wwids : %v\n", info.OwnersWWIDs)
		fmt.Printf("owners_paths : %v\n", info.OwnersPaths)
		fmt.Printf("owners_types : %v\n", info.OwnersTypes)
		fmt.Printf("uuid         : %s\n", info.UUID)
		fmt.Printf("mount_point  : %s\n", info.MountPoint)
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolVarP(&infoJSON, "json", "J", false, "print full JSON instead of plain fields")
	rootCmd.AddCommand(infoCmd)
}
