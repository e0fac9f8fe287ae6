package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mrhapile/dotnet-bridge/router"
	"github.com/mrhapile/dotnet-bridge/runtime"
)

func main() {
	// Example: call the managed payload in ./dotnet next to this binary

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	runtime.SetLogger(log)

	// The first call boots the .NET host; a boot failure terminates the process
	fmt.Printf("ping -> %s\n", runtime.ProcessRequest("ping"))

	// The same bridge, with errors returned instead of aborting
	bridge, err := runtime.Default()
	if err != nil {
		fmt.Printf("Error starting .NET host: %v\n", err)
		os.Exit(1)
	}

	// Routed call through the controller/action envelope
	var greeting string
	err = router.New(bridge).Invoke(context.Background(), "home", "greet", map[string]string{"name": "Ada"}, &greeting)
	if err != nil {
		fmt.Printf("Error calling home.greet: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("home.greet -> %s\n", greeting)
}
