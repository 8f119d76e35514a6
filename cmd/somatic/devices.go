package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/somatic/pkg/audio/local"
	"github.com/MrWong99/somatic/pkg/provider/tts/say"
)

func newDevicesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices and, on macOS, the available voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			devices, err := local.Devices()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, titleStyle.Render("Capture devices"))
			for _, d := range devices {
				marker := " "
				if d == c.cfg.Audio.InputDevice {
					marker = "*"
				}
				fmt.Fprintf(out, " %s %s\n", marker, d)
			}
			if c.cfg.TTS.Engine != "say" {
				return nil
			}
			voices, err := say.Voices(cmd.Context())
			if err != nil {
				fmt.Fprintln(out, dimStyle.Render("voices unavailable: "+err.Error()))
				return nil
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, titleStyle.Render("Voices"))
			for _, v := range voices {
				fmt.Fprintf(out, "   %s\n", v)
			}
			return nil
		},
	}
}
