package main

import (
	"fmt"
	"strings"

	"github.com/trashbot/trasharm/pkg/arm"
)

type PoseCommand struct {
	List  bool    `long:"list" description:"List available poses"`
	Speed float64 `long:"speed" description:"Speed in degrees per second (0 = config default)"`
	Args  struct {
		Name string `positional-arg-name:"pose"`
	} `positional-args:"yes"`
}

func (c *PoseCommand) Execute(args []string) error {
	log := newLogger()
	a, err := openArm(log)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.List || c.Args.Name == "" {
		printPoses(a)
		return nil
	}

	ctx, cancel := interruptContext()
	defer cancel()

	// Home and neutral work even without a pose table.
	switch c.Args.Name {
	case arm.PoseHome:
		err = a.Home(ctx, c.Speed, true)
	case arm.PoseNeutral:
		err = a.Neutral(ctx, c.Speed, true)
	default:
		err = a.GoToPose(ctx, c.Args.Name, c.Speed, true)
	}
	return report(err, "Reached "+c.Args.Name)
}

func printPoses(a *arm.Coordinator) {
	fmt.Println(headerStyle.Render("Available poses"))
	for _, name := range a.ListPoses() {
		pose, _ := a.Pose(name)
		var parts []string
		for _, joint := range a.Names() {
			if angle, ok := pose[joint]; ok {
				parts = append(parts, fmt.Sprintf("%s=%.0f", joint, angle))
			}
		}
		fmt.Printf("  %-16s %s\n", name, dimStyle.Render(strings.Join(parts, " ")))
	}
}
