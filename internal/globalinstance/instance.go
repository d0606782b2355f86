// Package globalinstance holds process-wide identity values that are
// stamped on every exported payload but never separately configured:
// the SDK version and a per-process instance id (spec §6,
// ExportSpansRequest.sdkInstanceId/sdkVersion).
package globalinstance

import "github.com/google/uuid"

// SDKVersion is the module's own release version. It is a plain constant
// rather than a build-time ldflags injection because this module has no
// release pipeline of its own to inject into.
const SDKVersion = "0.1.0"

var instanceID = uuid.NewString()

// InstanceID returns a random identifier generated once per process,
// stable for the process lifetime.
func InstanceID() string { return instanceID }
