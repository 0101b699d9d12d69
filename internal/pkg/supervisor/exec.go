package supervisor

import (
	"os"
	"os/exec"
	"strconv"
)

// WorkerIDEnv worker 进程通过该环境变量得知自己的编号
const WorkerIDEnv = "WORKER_ID"

// ExecLauncher 以子进程方式启动 worker 二进制，标准输出直接继承
type ExecLauncher struct {
	Binary string
	Args   []string
	Env    []string
}

func (l ExecLauncher) Launch(workerID int) (Process, error) {
	cmd := exec.Command(l.Binary, l.Args...)
	cmd.Env = append(append(os.Environ(), l.Env...), WorkerIDEnv+"="+strconv.Itoa(workerID))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}
