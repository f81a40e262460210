package main

import "fmt"

type StopCommand struct{}

// Execute opens a fresh connection and drives every output to a safe
// state. Meant to be run from a second terminal when a demo misbehaves.
func (c *StopCommand) Execute(args []string) error {
	log := newLogger()
	a, err := openArm(log)
	if err != nil {
		return err
	}
	if err := a.Close(); err != nil {
		return err
	}
	fmt.Println(successStyle.Render("All outputs stopped and disabled."))
	return nil
}
