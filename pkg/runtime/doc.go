/*
Package runtime manages the agent's own process lifecycle.

When the server requests a restart the heartbeat monitor calls
ProcessRelauncher.Relaunch, which:

 1. starts a detached copy of the current executable with the original
    arguments plus --relaunch (the AppImage path from $APPIMAGE when the
    agent runs from an AppImage, since the mounted binary vanishes with the
    old process)
 2. invokes the shutdown hook, which cancels the root context of the run
    command so the old process drains and exits

If the replacement cannot be started the hook is not called and the
current process keeps running.
*/
package runtime
