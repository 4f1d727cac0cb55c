package conda

import "os/exec"

// lookPath is swapped in tests.
var lookPath = exec.LookPath
