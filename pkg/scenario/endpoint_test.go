package scenario_test

import (
	"context"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/erc20-processor/cmd"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/luxfi/erc20-processor/pkg/keys"
	"github.com/luxfi/erc20-processor/pkg/logging"
	"github.com/luxfi/erc20-processor/pkg/rpc/rpctest"
	"github.com/luxfi/erc20-processor/pkg/scenario"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var (
	polygonToken   = common.HexToAddress("0x0B220b82F3eA3B7F6d9A1D8ab58930C064A2b5Bf")
	polygonWrapper = common.HexToAddress("0xbB6aad747990BB6F7f56851556A3277e474C656a")
)

// scripted answers every invocation from a callback
type scripted func(args []string) *scenario.Result

func (s scripted) Run(ctx context.Context, args ...string) (*scenario.Result, error) {
	return s(args), nil
}

var _ = Describe("EndpointCheck", func() {
	var (
		ctx  context.Context
		node *rpctest.Node
	)

	BeforeEach(func() {
		ctx = context.Background()
		if v, ok := os.LookupEnv(keys.EnvPrivateKeys); ok {
			Expect(os.Unsetenv(keys.EnvPrivateKeys)).To(Succeed())
			DeferCleanup(os.Setenv, keys.EnvPrivateKeys, v)
		}
		node = rpctest.NewNode(137, polygonToken, polygonWrapper)
		DeferCleanup(node.Close)
	})

	newCheck := func(invoker scenario.Invoker) *scenario.EndpointCheck {
		return &scenario.EndpointCheck{
			Network:   "polygon",
			Accounts:  scenario.DefaultAccounts,
			BothPaths: true,
			Invoker:   invoker,
			Log:       logging.Discard(),
			WorkDir:   GinkgoT().TempDir(),
		}
	}

	Context("with the in-process CLI", func() {
		It("passes an endpoint reporting zero balances", func() {
			reports, err := newCheck(scenario.InProcess{Main: cmd.Run}).Run(ctx, []string{node.URL()})
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).To(HaveLen(1))

			report := reports[0]
			Expect(report.OK).To(BeTrue(), report.Error)
			Expect(report.Runs).To(HaveLen(2))
			for _, run := range report.Runs {
				Expect(run.ExitCode).To(BeZero())
				Expect(run.Accounts).To(Equal(scenario.DefaultAccounts))
			}
			Expect(report.Runs[0].Wrapper).To(BeTrue())
			Expect(report.Runs[1].Wrapper).To(BeFalse())
			Expect(node.Calls("wrapper")).To(Equal(scenario.DefaultAccounts))
			Expect(node.Calls("eth_getBalance")).To(Equal(scenario.DefaultAccounts))
		})

		It("fails an unreachable endpoint without aborting the others", func() {
			dead := rpctest.NewNode(137, polygonToken, polygonWrapper)
			dead.Close()

			reports, err := newCheck(scenario.InProcess{Main: cmd.Run}).Run(ctx, []string{dead.URL(), node.URL()})
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).To(HaveLen(2))
			Expect(reports[0].OK).To(BeFalse())
			Expect(reports[0].Error).To(ContainSubstring("exited with code 1"))
			Expect(reports[1].OK).To(BeTrue())
		})

		It("fails an endpoint serving another chain", func() {
			other := rpctest.NewNode(80002, polygonToken, polygonWrapper)
			DeferCleanup(other.Close)

			reports, err := newCheck(scenario.InProcess{Main: cmd.Run}).Run(ctx, []string{other.URL()})
			Expect(err).NotTo(HaveOccurred())
			Expect(reports[0].OK).To(BeFalse())
		})

		It("redacts endpoints in reports", func() {
			reports, err := newCheck(scenario.InProcess{Main: cmd.Run}).Run(ctx, []string{node.URL() + "/v1/secret-key"})
			Expect(err).NotTo(HaveOccurred())
			Expect(reports[0].Endpoint).NotTo(ContainSubstring("secret-key"))
		})
	})

	It("rejects a missing invoker", func() {
		_, err := newCheck(nil).Run(ctx, []string{node.URL()})
		Expect(core.IsConfig(err)).To(BeTrue())
	})

	It("aborts when generate-key fails", func() {
		invoker := scripted(func(args []string) *scenario.Result {
			return &scenario.Result{ExitCode: 1, Stderr: []byte("boom")}
		})
		_, err := newCheck(invoker).Run(ctx, []string{node.URL()})
		Expect(core.IsValidation(err)).To(BeTrue())
	})

	It("flags a generate-key run producing the wrong count", func() {
		invoker := scripted(func(args []string) *scenario.Result {
			return &scenario.Result{Stdout: []byte("ETH_PRIVATE_KEYS=\"\"\n")}
		})
		_, err := newCheck(invoker).Run(ctx, []string{node.URL()})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("expected 7"))
	})
})

var _ = Describe("Verify", func() {
	want := []string{
		"0x7e5f4552091a69125d5dfcb7b8c2659029395bdf",
		"0x2b5ad5c4795c026514f8317c7a215e218dccd6cf",
	}
	ok := `{"0x7e5f4552091a69125d5dfcb7b8c2659029395bdf":{"gas":"0","token":"0"},` +
		`"0x2b5ad5c4795c026514f8317c7a215e218dccd6cf":{"gas":"0","token":"0"}}`

	It("accepts zero balances for every account", func() {
		result, err := scenario.Verify(&scenario.Result{Stdout: []byte(ok)}, want)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(HaveLen(2))
	})

	DescribeTable("rejects",
		func(res *scenario.Result, fragment string) {
			_, err := scenario.Verify(res, want)
			Expect(core.IsValidation(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(fragment))
		},
		Entry("a failed run", &scenario.Result{ExitCode: 1, Stderr: []byte("log\nError: network error: down\n")},
			"network error: down"),
		Entry("non-JSON output", &scenario.Result{Stdout: []byte("nope")}, "not a JSON object"),
		Entry("a missing account", &scenario.Result{Stdout: []byte(
			`{"0x7e5f4552091a69125d5dfcb7b8c2659029395bdf":{"gas":"0","token":"0"}}`)}, "reported 1 accounts"),
		Entry("an unexpected account", &scenario.Result{Stdout: []byte(
			strings.Replace(ok, "0x2b5ad5c4795c026514f8317c7a215e218dccd6cf", "0x6813eb9362372eef6200f3b1dbc3f819671cba69", 1))},
			"missing from balance output"),
		Entry("a funded account", &scenario.Result{Stdout: []byte(
			strings.Replace(ok, `"gas":"0"`, `"gas":"5"`, 1))}, "expected zero"),
	)
})

var _ = Describe("Exec", func() {
	It("captures streams and the exit code", func() {
		res, err := scenario.Exec{Binary: "sh"}.Run(context.Background(), "-c", "echo out; echo err >&2; exit 3")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.ExitCode).To(Equal(3))
		Expect(string(res.Stdout)).To(Equal("out\n"))
		Expect(string(res.Stderr)).To(Equal("err\n"))
	})

	It("hides private keys from the child environment", func() {
		GinkgoT().Setenv(keys.EnvPrivateKeys, "0x01")
		res, err := scenario.Exec{Binary: "sh"}.Run(context.Background(), "-c", "echo ${ETH_PRIVATE_KEYS:-unset}")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(res.Stdout)).To(Equal("unset\n"))
	})

	It("reports a missing binary", func() {
		_, err := scenario.Exec{Binary: "/nonexistent/erc20_processor"}.Run(context.Background())
		Expect(err).To(HaveOccurred())
	})
})
