package balance_test

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/erc20-processor/pkg/balance"
	"github.com/luxfi/erc20-processor/pkg/config"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/luxfi/erc20-processor/pkg/keys"
	"github.com/luxfi/erc20-processor/pkg/logging"
	"github.com/luxfi/erc20-processor/pkg/rpc"
	"github.com/luxfi/erc20-processor/pkg/rpc/rpctest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var (
	tokenAddr   = common.HexToAddress("0x0B220b82F3eA3B7F6d9A1D8ab58930C064A2b5Bf")
	wrapperAddr = common.HexToAddress("0xbB6aad747990BB6F7f56851556A3277e474C656a")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

var _ = Describe("Checker", func() {
	var (
		ctx   context.Context
		node  *rpctest.Node
		chain *config.Chain
		pool  *rpc.Pool
		addrs []common.Address
	)

	newChecker := func(useWrapper bool, block *big.Int) *balance.Checker {
		checker, err := balance.NewChecker(pool, balance.Config{
			Chain:       chain,
			UseWrapper:  useWrapper,
			BlockNumber: block,
			Concurrency: 3,
		}, logging.Discard())
		Expect(err).NotTo(HaveOccurred())
		return checker
	}

	BeforeEach(func() {
		ctx = context.Background()
		node = rpctest.NewNode(137, tokenAddr, wrapperAddr)
		DeferCleanup(node.Close)

		chain = &config.Chain{
			Key:          "polygon",
			ChainName:    "Polygon",
			ChainID:      137,
			RPCEndpoints: []string{node.URL()},
			RPCTimeout:   2 * time.Second,
			Token:        config.Token{Symbol: "GLM", Address: tokenAddr.Hex()},
			WrapperContract: &config.WrapperContract{
				Address: wrapperAddr.Hex(),
			},
		}

		var err error
		pool, err = rpc.NewPool(rpc.Options{
			Endpoints: chain.RPCEndpoints,
			Timeout:   chain.RPCTimeout,
			Logger:    logging.Discard(),
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)

		accounts, err := keys.NewGenerator().Generate(7)
		Expect(err).NotTo(HaveOccurred())
		addrs = make([]common.Address, 0, len(accounts))
		for _, acc := range accounts {
			addrs = append(addrs, acc.Address)
		}
	})

	Context("unfunded accounts", func() {
		It("reports zero balances through the wrapper", func() {
			result, err := newChecker(true, nil).CheckAll(ctx, addrs, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(7))
			for _, entry := range result {
				Expect(entry).To(Equal(balance.Entry{Gas: "0", Token: "0"}))
			}
			Expect(result.AllZero()).To(BeTrue())
			Expect(node.Calls("wrapper")).To(Equal(7))
			Expect(node.Calls("eth_getBalance")).To(BeZero())
		})

		It("reports zero balances without the wrapper", func() {
			result, err := newChecker(false, nil).CheckAll(ctx, addrs, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveLen(7))
			Expect(result.AllZero()).To(BeTrue())
			Expect(node.Calls("wrapper")).To(BeZero())
			Expect(node.Calls("eth_getBalance")).To(Equal(7))
		})

		It("keys results by lowercase address", func() {
			result, err := newChecker(true, nil).CheckAll(ctx, addrs[:1], false)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(HaveKey(keys.Account{Address: addrs[0]}.ID()))
		})
	})

	Context("funded accounts", func() {
		BeforeEach(func() {
			node.SetGas(addrs[0], ether(2))
			node.SetToken(addrs[0], big.NewInt(12345))
			node.SetToken(addrs[1], ether(3))
		})

		It("agrees on balances with and without the wrapper", func() {
			viaWrapper, err := newChecker(true, nil).CheckAll(ctx, addrs, false)
			Expect(err).NotTo(HaveOccurred())
			direct, err := newChecker(false, nil).CheckAll(ctx, addrs, false)
			Expect(err).NotTo(HaveOccurred())

			Expect(viaWrapper).To(Equal(direct))
			Expect(direct[keys.Account{Address: addrs[0]}.ID()]).To(Equal(balance.Entry{
				Gas:   "2000000000000000000",
				Token: "12345",
			}))
			Expect(viaWrapper.AllZero()).To(BeFalse())
		})

		It("formats whole units on request", func() {
			result, err := newChecker(true, nil).CheckAll(ctx, addrs[:2], true)
			Expect(err).NotTo(HaveOccurred())
			Expect(result[keys.Account{Address: addrs[0]}.ID()]).To(Equal(balance.Entry{
				Gas:   "2",
				Token: "0.000000000000012345",
			}))
			Expect(result[keys.Account{Address: addrs[1]}.ID()]).To(Equal(balance.Entry{
				Gas:   "0",
				Token: "3",
			}))
		})

		It("returns block details for a single account", func() {
			info, err := newChecker(true, nil).GetBalance(ctx, addrs[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(info.ViaWrapper).To(BeTrue())
			Expect(info.Gas.String()).To(Equal(ether(2).String()))
			Expect(info.BlockNumber).To(BeNumerically(">", 0))
			Expect(info.BlockTime.IsZero()).To(BeFalse())
		})
	})

	It("collapses duplicate accounts", func() {
		dup := append([]common.Address{}, addrs[0], addrs[0], addrs[1])
		result, err := newChecker(false, nil).CheckAll(ctx, dup, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(HaveLen(2))
	})

	It("handles an empty account list", func() {
		result, err := newChecker(true, nil).CheckAll(ctx, nil, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(BeEmpty())
	})

	It("pins queries to the requested block", func() {
		info, err := newChecker(false, big.NewInt(500)).GetBalance(ctx, addrs[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(info.BlockNumber).To(Equal(uint64(500)))
	})

	It("fails for a block beyond the head", func() {
		_, err := newChecker(false, big.NewInt(1_000_000)).GetBalance(ctx, addrs[0])
		Expect(err).To(HaveOccurred())
		Expect(core.IsNetwork(err)).To(BeTrue())
	})

	It("falls back to direct queries on insufficient funds", func() {
		node.Fail("wrapper", "insufficient funds for gas * price + value")
		node.SetGas(addrs[0], big.NewInt(7))

		info, err := newChecker(true, nil).GetBalance(ctx, addrs[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(info.ViaWrapper).To(BeFalse())
		Expect(info.Gas.String()).To(Equal("7"))
		Expect(node.Calls("eth_getBalance")).To(Equal(1))
	})

	It("does not fall back on other wrapper errors", func() {
		node.Fail("wrapper", "execution reverted")

		_, err := newChecker(true, nil).GetBalance(ctx, addrs[0])
		Expect(err).To(HaveOccurred())
		Expect(core.IsNetwork(err)).To(BeTrue())
		Expect(node.Calls("eth_getBalance")).To(BeZero())
	})

	It("rejects an endpoint serving another chain", func() {
		chain.ChainID = 80002

		_, err := newChecker(true, nil).CheckAll(ctx, addrs, false)
		Expect(err).To(HaveOccurred())
		Expect(core.IsNetwork(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("expected 80002"))
		Expect(node.Calls("eth_call")).To(BeZero())
	})

	It("rejects a wrapper reporting another chain", func() {
		node.SetWrapperChainID(80002)

		_, err := newChecker(true, nil).GetBalance(ctx, addrs[0])
		Expect(err).To(HaveOccurred())
		Expect(core.IsNetwork(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("wrapper reports chain id 80002"))

		_, err = newChecker(false, nil).GetBalance(ctx, addrs[0])
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a token without contract code", func() {
		chain.Token.Address = "0x000000000000000000000000000000000000dEaD"

		_, err := newChecker(false, nil).CheckAll(ctx, addrs, false)
		Expect(err).To(HaveOccurred())
		Expect(core.IsNetwork(err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("not a valid ERC-20 contract"))
	})

	It("fails the whole check when a query fails", func() {
		node.Fail("eth_getBalance", "header not found")

		result, err := newChecker(false, nil).CheckAll(ctx, addrs, false)
		Expect(err).To(HaveOccurred())
		Expect(result).To(BeNil())
	})

	It("reports an unreachable endpoint as a network error", func() {
		node.Close()

		_, err := newChecker(true, nil).CheckAll(ctx, addrs, false)
		Expect(err).To(HaveOccurred())
		Expect(core.IsNetwork(err)).To(BeTrue())
	})

	It("validates its configuration", func() {
		_, err := balance.NewChecker(pool, balance.Config{}, nil)
		Expect(core.IsConfig(err)).To(BeTrue())

		_, err = balance.NewChecker(pool, balance.Config{Chain: chain, Concurrency: -1}, nil)
		Expect(core.IsConfig(err)).To(BeTrue())

		_, err = balance.NewChecker(pool, balance.Config{Chain: chain, BlockNumber: big.NewInt(-1)}, nil)
		Expect(core.IsConfig(err)).To(BeTrue())
	})
})

var _ = Describe("FormatUnits", func() {
	DescribeTable("scales base units",
		func(v *big.Int, decimals int, want string) {
			Expect(balance.FormatUnits(v, decimals)).To(Equal(want))
		},
		Entry("zero", big.NewInt(0), 18, "0"),
		Entry("one ether", ether(1), 18, "1"),
		Entry("fraction", big.NewInt(1500000), 6, "1.5"),
		Entry("no decimals", big.NewInt(42), 0, "42"),
	)
})
