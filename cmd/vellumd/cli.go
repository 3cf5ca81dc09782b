package main

import "flag"

// CLIOpts mirrors the teacher's flag-parsing shape: a single struct
// populated by parseCLIOpts and consulted once at startup.
type CLIOpts struct {
	verbose   bool
	setcap    bool
	elevate   bool
	backend   string
	display   string
	benchmark bool
}

func parseCLIOpts() CLIOpts {
	var opt CLIOpts
	flag.BoolVar(&opt.verbose, "v", false, "Verbose output (print logs to stderr)")
	flag.BoolVar(&opt.setcap, "setcap", false, "for internal use only")
	flag.BoolVar(&opt.elevate, "elevate", false, "acquire CAP_SYS_NICE via pkexec, then exit")
	flag.StringVar(&opt.backend, "backend", "", "override the configured rendering backend")
	flag.StringVar(&opt.display, "display", "", "X display to connect to (default: $DISPLAY)")
	flag.BoolVar(&opt.benchmark, "benchmark", false, "repaint continuously regardless of damage, for throughput testing")
	flag.Parse()

	return opt
}
